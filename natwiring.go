/*
File Name:  natwiring.go

Optional UPnP port mapping for the local peer transport's discovery/data
port, so two nodes separated by a consumer NAT router can still bridge
meshes over the local peer transport (§4.8, §11: "EnableUPnP"). Off by
default; BLE never needs this since it has no notion of a router.
*/

package meshcore

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/bitchat-mesh/meshcore/transport"
	"github.com/bitchat-mesh/meshcore/upnp"
)

// upnpLeaseDuration is how long the port mapping is requested for.
// maintainUPnP runs once, when Connect starts; the mapping is not renewed
// after the lease expires.
const upnpLeaseDuration = 2 * time.Hour

func (e *Engine) maintainUPnP() {
	if !e.Config.EnableUPnP {
		return
	}

	localIP, err := firstNonLoopbackIPv4()
	if err != nil {
		e.logf(zap.DebugLevel, "upnp: no local IPv4 address found", zap.Error(err))
		return
	}

	nat, err := upnp.Discover(localIP)
	if err != nil {
		e.logf(zap.DebugLevel, "upnp: gateway discovery failed", zap.Error(err))
		return
	}

	port, err := nat.AddPortMapping("udp", localIP, transport.DiscoveryPort, transport.DiscoveryPort,
		"meshcore local peer discovery", int(upnpLeaseDuration.Seconds()))
	if err != nil {
		e.logf(zap.WarnLevel, "upnp: port mapping failed", zap.Error(err))
		return
	}
	e.logf(zap.InfoLevel, "upnp: mapped local peer discovery port", zap.Uint16("port", port))
}

func firstNonLoopbackIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, errNoLocalIPv4
}

var errNoLocalIPv4 = engineError("meshcore: no non-loopback IPv4 address found")
