package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	controlchain "github.com/control-chain/controlchain"
	"github.com/control-chain/controlchain/internal/trace"
	"github.com/control-chain/controlchain/ipc"
)

var (
	serialDevice = flag.String("serial", "/dev/ttyACM0", "Serial device path")
	baudRate     = flag.Int("baud", 115200, "Serial baud rate")
	socketPath   = flag.String("socket", "/var/run/controlchain.sock", "IPC socket path")
	debugLevel   = flag.Int("debug", -1, "Trace level (0=silent 1=event 2=frame); -1 reads LIBCONTROLCHAIN_DEBUG")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting control chain host")
	log.Printf("Serial device: %s", *serialDevice)
	log.Printf("Baud rate: %d", *baudRate)
	log.Printf("IPC socket: %s", *socketPath)

	if *debugLevel >= 0 {
		trace.SetDefault(trace.New(trace.Level(*debugLevel), nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := controlchain.Open(ctx, *serialDevice, *baudRate)
	if err != nil {
		log.Fatalf("Failed to open control chain on %s: %v", *serialDevice, err)
	}
	defer handle.Close()
	log.Printf("Control chain open")

	handle.SetDeviceStatusCallback(func(dev *controlchain.Device) {
		log.Printf("device %d status changed to %s", dev.ID, dev.Status)
	})

	server, err := ipc.Listen(handle, *socketPath)
	if err != nil {
		log.Fatalf("Failed to start IPC server: %v", err)
	}
	defer server.Close()
	log.Printf("IPC server listening on %s", *socketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Printf("Shutting down...")
}
