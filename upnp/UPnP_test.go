package upnp

import (
	"testing"
)

func TestCombineURLResolvesControlPathAgainstRoot(t *testing.T) {
	got := combineURL("http://192.168.1.1:49152/rootDesc.xml", "/ctl/WANIPConn")
	want := "http://192.168.1.1:49152/ctl/WANIPConn"
	if got != want {
		t.Fatalf("combineURL() = %q, want %q", got, want)
	}
}

func TestGetChildDeviceFindsNestedDeviceByType(t *testing.T) {
	wan := device{DeviceType: "urn:schemas-upnp-org:device:WANDevice:1"}
	root := device{DeviceList: deviceList{Device: []device{wan}}}

	got := getChildDevice(&root, "WANDevice:1")
	if got == nil {
		t.Fatalf("expected to find WANDevice child")
	}
	if got.DeviceType != wan.DeviceType {
		t.Fatalf("got %q, want %q", got.DeviceType, wan.DeviceType)
	}
}

func TestGetChildDeviceMissReturnsNil(t *testing.T) {
	root := device{}
	if got := getChildDevice(&root, "WANDevice:1"); got != nil {
		t.Fatalf("expected nil for a device with no children, got %+v", got)
	}
}

func TestGetChildServiceFindsServiceByType(t *testing.T) {
	svc := service{ServiceType: "urn:schemas-upnp-org:service:WANIPConnection:1", ControlURL: "/ctl"}
	d := device{ServiceList: serviceList{Service: []service{svc}}}

	got := getChildService(&d, "WANIPConnection:1")
	if got == nil {
		t.Fatalf("expected to find WANIPConnection service")
	}
	if got.ControlURL != svc.ControlURL {
		t.Fatalf("got control url %q, want %q", got.ControlURL, svc.ControlURL)
	}
}

func TestGetChildServiceMissReturnsNil(t *testing.T) {
	d := device{}
	if got := getChildService(&d, "WANIPConnection:1"); got != nil {
		t.Fatalf("expected nil for a device with no services, got %+v", got)
	}
}

func TestDiscoverFailsFastWithoutLocalAddress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network probe in -short mode")
	}
	if _, err := Discover(nil); err == nil {
		t.Fatalf("expected Discover to fail without a real local address")
	}
}
