package ipc

import "testing"

func TestIdOrErrorSuccess(t *testing.T) {
	v := idOrError(7, nil)
	m, ok := v.(map[string]int)
	if !ok || m["id"] != 7 {
		t.Fatalf("idOrError(7, nil) = %#v", v)
	}
}

func TestIdOrErrorFailure(t *testing.T) {
	v := idOrError(-1, errTest{})
	m, ok := v.(map[string]string)
	if !ok || m["error"] == "" {
		t.Fatalf("idOrError(-1, err) = %#v, want an error map", v)
	}
}

func TestOkOrErrorSuccess(t *testing.T) {
	v := okOrError(nil)
	m, ok := v.(map[string]bool)
	if !ok || !m["ok"] {
		t.Fatalf("okOrError(nil) = %#v", v)
	}
}

func TestClientSubscriptionToggle(t *testing.T) {
	c := &client{}
	c.setSubscription("device_status", true)
	if !c.wantsStatus {
		t.Fatal("expected wantsStatus to be true after subscribing")
	}
	c.setSubscription("device_status", false)
	if c.wantsStatus {
		t.Fatal("expected wantsStatus to be false after unsubscribing")
	}
	c.setSubscription("data_update", true)
	if !c.wantsUpdates {
		t.Fatal("expected wantsUpdates to be true after subscribing")
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
