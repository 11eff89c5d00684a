package backend

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/google/gousb"

	"PhotoTransfer/pkg/device"
)

// phoneVendors maps USB vendor ids of phone makers to a display name
var phoneVendors = map[uint16]string{
	0x04e8: "Samsung",
	0x18d1: "Google",
	0x22b8: "Motorola",
	0x0bb4: "HTC",
	0x2717: "Xiaomi",
	0x1004: "LG",
	0x05c6: "Qualcomm",
	0x2a70: "OnePlus",
	0x0fce: "Sony",
	0x2916: "OPPO",
	0x2ae5: "Huawei",
	0x05ac: "Apple",
}

const appleVendor = 0x05ac

// USBBackend recognizes phones on the USB bus by vendor id. It cannot read
// media; it tells the user a phone is attached but no transfer tool claimed it.
type USBBackend struct {
	logger log.Interface
}

// NewUSBBackend creates the libusb vendor probe
func NewUSBBackend(logger log.Interface) *USBBackend {
	if logger == nil {
		logger = log.Log
	}
	return &USBBackend{logger: logger}
}

func (b *USBBackend) Name() string { return "usb" }

func newUSBContext() (*gousb.Context, error) {
	resC := make(chan *gousb.Context)
	errC := make(chan error)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errC <- fmt.Errorf("%v", r)
			}
		}()
		resC <- gousb.NewContext()
	}()

	select {
	case err := <-errC:
		return nil, err
	case res := <-resC:
		return res, nil
	}
}

// Discover walks the bus descriptors without opening any device
func (b *USBBackend) Discover(ctx context.Context) ([]device.Device, error) {
	usb, err := newUSBContext()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize USB: %w", err)
	}
	defer usb.Close()

	var devices []device.Device
	_, err = usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if d, ok := phoneFromDescriptor(uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address); ok {
			devices = append(devices, d)
		}
		return false
	})
	if err != nil {
		b.logger.WithError(err).Debug("[USB] Discover: bus walk incomplete")
	}
	return devices, nil
}

func phoneFromDescriptor(vendor, product uint16, bus, address int) (device.Device, bool) {
	name, ok := phoneVendors[vendor]
	if !ok {
		return device.Device{}, false
	}
	typ := device.TypeAndroid
	if vendor == appleVendor {
		typ = device.TypeIOS
	}
	return device.Device{
		ID:           fmt.Sprintf("usb-%04x-%04x", vendor, product),
		Name:         name + " Device",
		Type:         typ,
		Manufacturer: name,
		Connected:    true,
		Locator:      device.Locator{USBBus: bus, USBAddress: address},
	}, true
}

func (b *USBBackend) Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	return []device.MediaItem{}, nil
}

func (b *USBBackend) Fetch(ctx context.Context, dev device.Device, item device.MediaItem, destPath string) error {
	return fmt.Errorf("%w: raw USB transfer", device.ErrUnsupported)
}
