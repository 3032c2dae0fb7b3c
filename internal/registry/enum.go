package registry

// enumWindow computes the visible slice of an option list around
// listIndex for a device that can display frameSize items at once,
// clamping the window to [0, listCount-1] and re-expanding the
// opposite bound to keep the window as wide as frameSize allows. It
// returns the list index adjusted to be relative to the window's
// lower bound, which is what goes out on the wire.
func enumWindow(listIndex, frameSize, listCount int) (adjustedIndex, frameMin, frameMax int) {
	if listCount <= 0 {
		return 0, 0, 0
	}

	half := frameSize / 2
	frameMin = listIndex - half
	frameMax = listIndex + half

	if frameMin < 0 {
		diff := -frameMin
		frameMin = 0
		frameMax += diff
	}
	if frameMax > listCount-1 {
		diff := frameMax - (listCount - 1)
		frameMax = listCount - 1
		frameMin -= diff
		if frameMin < 0 {
			frameMin = 0
		}
	}

	adjustedIndex = listIndex - frameMin
	return adjustedIndex, frameMin, frameMax
}
