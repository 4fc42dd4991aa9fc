/*
File Name:  UPnP.go

NAT-PMP's louder, older cousin. The local peer transport listens on a
fixed UDP port (transport.DiscoveryPort) for LAN discovery and data
exchange; when a node sits behind a consumer NAT router, natwiring.go
uses this package to open that port automatically rather than asking a
user to configure port forwarding by hand (§4.8, §11 "EnableUPnP").
*/

package upnp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// NAT is a router capable of external address lookup and port forwarding,
// satisfied by a discovered UPnP Internet Gateway Device.
type NAT interface {
	// GetExternalAddress returns this router's address on the public side.
	GetExternalAddress() (addr net.IP, err error)
	// AddPortMapping forwards externalPort to internalIP:internalPort for
	// the given protocol ("udp" or "tcp"), lasting timeout seconds.
	AddPortMapping(protocol string, internalIP net.IP, internalPort, externalPort uint16, description string, timeout int) (mappedExternalPort uint16, err error)
	// DeletePortMapping removes a mapping previously installed for externalPort.
	DeletePortMapping(protocol string, externalPort uint16) (err error)
}

type upnpNAT struct {
	serviceURL string
	urnDomain  string
	localIP    net.IP
}

// Discover sends an SSDP M-SEARCH from localIP and returns the first
// Internet Gateway Device that answers, or an error if none responds
// within a few retries.
func Discover(localIP net.IP) (nat NAT, err error) {
	ssdp, err := net.ResolveUDPAddr("udp4", "239.255.255.250:1900")
	if err != nil {
		return
	}
	conn, err := net.ListenPacket("udp4", net.JoinHostPort(localIP.String(), "0")) // use a random port
	if err != nil {
		return
	}
	socket := conn.(*net.UDPConn)
	defer socket.Close()

	err = socket.SetDeadline(time.Now().Add(3 * time.Second))
	if err != nil {
		return
	}

	st := "InternetGatewayDevice:1"

	buf := bytes.NewBufferString(
		"M-SEARCH * HTTP/1.1\r\n" +
			"HOST: 239.255.255.250:1900\r\n" +
			"ST: ssdp:all\r\n" +
			"MAN: \"ssdp:discover\"\r\n" +
			"MX: 2\r\n\r\n")
	message := buf.Bytes()
	answerBytes := make([]byte, 1024)
	for i := 0; i < 3; i++ {
		_, err = socket.WriteToUDP(message, ssdp)
		if err != nil {
			return
		}
		var n int
		_, _, err = socket.ReadFromUDP(answerBytes)
		if err != nil {
			return
		}
		for {
			n, _, err = socket.ReadFromUDP(answerBytes)
			if err != nil {
				break
			}
			answer := string(answerBytes[0:n])
			if !strings.Contains(answer, st) {
				continue
			}
			// Header names are case-insensitive (RFC 2616 §4.2).
			locString := "\r\nlocation:"
			answer = strings.ToLower(answer)
			locIndex := strings.Index(answer, locString)
			if locIndex < 0 {
				continue
			}
			loc := answer[locIndex+len(locString):]
			endIndex := strings.Index(loc, "\r\n")
			if endIndex < 0 {
				continue
			}
			locURL := strings.TrimSpace(loc[0:endIndex])
			var serviceURL, urnDomain string
			serviceURL, urnDomain, err = getServiceURL(localIP, locURL)
			if err != nil {
				return
			}
			nat = &upnpNAT{serviceURL: serviceURL, urnDomain: urnDomain, localIP: localIP}
			return
		}
	}
	err = errors.New("upnp: gateway discovery timed out")
	return
}

// service is the subset of a UPnP <service> element this package reads.
type service struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
}

// deviceList is the subset of a UPnP <deviceList> element this package reads.
type deviceList struct {
	XMLName xml.Name `xml:"deviceList"`
	Device  []device `xml:"device"`
}

// serviceList is the subset of a UPnP <serviceList> element this package reads.
type serviceList struct {
	XMLName xml.Name  `xml:"serviceList"`
	Service []service `xml:"service"`
}

// device is the subset of a UPnP <device> element this package reads.
type device struct {
	XMLName     xml.Name    `xml:"device"`
	DeviceType  string      `xml:"deviceType"`
	DeviceList  deviceList  `xml:"deviceList"`
	ServiceList serviceList `xml:"serviceList"`
}

// specVersion is the subset of a UPnP <specVersion> element this package reads.
type specVersion struct {
	XMLName xml.Name `xml:"specVersion"`
	Major   int      `xml:"major"`
	Minor   int      `xml:"minor"`
}

// root is the root document of a UPnP device description.
type root struct {
	XMLName     xml.Name `xml:"root"`
	SpecVersion specVersion
	Device      device
}

// getChildDevice returns the first child of d whose DeviceType contains
// deviceType, or nil.
func getChildDevice(d *device, deviceType string) *device {
	for i := range d.DeviceList.Device {
		if strings.Contains(d.DeviceList.Device[i].DeviceType, deviceType) {
			return &d.DeviceList.Device[i]
		}
	}
	return nil
}

// getChildService returns the first service of d whose ServiceType contains
// serviceType, or nil.
func getChildService(d *device, serviceType string) *service {
	for i := range d.ServiceList.Service {
		if strings.Contains(d.ServiceList.Service[i].ServiceType, serviceType) {
			return &d.ServiceList.Service[i]
		}
	}
	return nil
}

// getServiceURL fetches the device description at rootURL and walks it down
// to the WANIPConnection service used for port mapping.
func getServiceURL(localIP net.IP, rootURL string) (url, urnDomain string, err error) {

	webclient := &http.Client{
		Transport: &http.Transport{
			Proxy: nil,
			DialContext: (&net.Dialer{
				LocalAddr: &net.TCPAddr{
					IP: localIP,
				},
				Timeout:   3 * time.Second,
				DualStack: true,
			}).DialContext,
			TLSHandshakeTimeout:   3 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 3 * time.Second,
	}

	r, err := webclient.Get(rootURL)
	if err != nil {
		return
	}
	defer r.Body.Close()

	if r.StatusCode >= 400 {
		err = errors.New("upnp: unexpected status code " + strconv.Itoa(r.StatusCode))
		return
	}
	var root root
	err = xml.NewDecoder(r.Body).Decode(&root)
	if err != nil {
		return
	}
	a := &root.Device
	if !strings.Contains(a.DeviceType, "InternetGatewayDevice:1") {
		err = errors.New("upnp: no InternetGatewayDevice in description")
		return
	}
	b := getChildDevice(a, "WANDevice:1")
	if b == nil {
		err = errors.New("upnp: no WANDevice in description")
		return
	}
	c := getChildDevice(b, "WANConnectionDevice:1")
	if c == nil {
		err = errors.New("upnp: no WANConnectionDevice in description")
		return
	}
	d := getChildService(c, "WANIPConnection:1")
	if d == nil {
		// A handful of routers nest WANIPConnection directly under WANDevice
		// instead of under WANConnectionDevice.
		d = getChildService(b, "WANIPConnection:1")

		if d == nil {
			err = errors.New("upnp: no WANIPConnection in description")
			return
		}
	}
	// The urn domain isn't always "schemas-upnp-org".
	urnDomain = strings.Split(d.ServiceType, ":")[1]
	url = combineURL(rootURL, d.ControlURL)
	return url, urnDomain, err
}

// combineURL resolves subURL (typically a control URL) against rootURL's
// scheme and host.
func combineURL(rootURL, subURL string) string {
	protocolEnd := "://"
	protoEndIndex := strings.Index(rootURL, protocolEnd)
	a := rootURL[protoEndIndex+len(protocolEnd):]
	rootIndex := strings.Index(a, "/")
	return rootURL[0:protoEndIndex+len(protocolEnd)+rootIndex] + subURL
}

// soapBody is the <s:Body> element of a SOAP reply.
type soapBody struct {
	XMLName xml.Name `xml:"Body"`
	Data    []byte   `xml:",innerxml"`
}

// soapEnvelope is the <s:Envelope> element of a SOAP reply.
type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    soapBody `xml:"Body"`
}

// soapRequest issues a SOAP action against url and returns the reply body
// with its envelope stripped.
func (n *upnpNAT) soapRequest(url, function, message, domain string) (replyXML []byte, err error) {
	fullMessage := "<?xml version=\"1.0\" ?>" +
		"<s:Envelope xmlns:s=\"http://schemas.xmlsoap.org/soap/envelope/\" s:encodingStyle=\"http://schemas.xmlsoap.org/soap/encoding/\">\r\n" +
		"<s:Body>" + message + "</s:Body></s:Envelope>"

	req, err := http.NewRequest("POST", url, strings.NewReader(fullMessage))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml ; charset=\"utf-8\"")
	req.Header.Set("User-Agent", "meshcore UPnP client")
	req.Header.Set("SOAPAction", "\"urn:"+domain+":service:WANIPConnection:1#"+function+"\"")
	req.Header.Set("Connection", "Close")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	webclient := &http.Client{
		Transport: &http.Transport{
			Proxy: nil,
			DialContext: (&net.Dialer{
				LocalAddr: &net.TCPAddr{
					IP: n.localIP,
				},
				Timeout:   3 * time.Second,
				DualStack: true,
			}).DialContext,
			TLSHandshakeTimeout:   3 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 3 * time.Second,
	}

	r, err := webclient.Do(req)
	if err != nil {
		return nil, err
	}
	if r.Body != nil {
		defer r.Body.Close()
	}

	if r.StatusCode >= 400 {
		err = errors.New("upnp: error " + strconv.Itoa(r.StatusCode) + " for " + function)
		r = nil
		return
	}
	var reply soapEnvelope
	err = xml.NewDecoder(r.Body).Decode(&reply)
	if err != nil {
		return nil, err
	}
	return reply.Body.Data, nil
}

// getExternalIPAddressResponse is the XML reply to a GetExternalIPAddress
// SOAP request.
type getExternalIPAddressResponse struct {
	XMLName           xml.Name `xml:"GetExternalIPAddressResponse"`
	ExternalIPAddress string   `xml:"NewExternalIPAddress"`
}

// GetExternalAddress implements NAT.
func (n *upnpNAT) GetExternalAddress() (addr net.IP, err error) {
	message := "<u:GetExternalIPAddress xmlns:u=\"urn:" + n.urnDomain + ":service:WANIPConnection:1\">\r\n</u:GetExternalIPAddress>"
	response, err := n.soapRequest(n.serviceURL, "GetExternalIPAddress", message, n.urnDomain)
	if err != nil {
		return nil, err
	}

	var reply getExternalIPAddressResponse
	err = xml.Unmarshal(response, &reply)
	if err != nil {
		return nil, err
	}

	addr = net.ParseIP(reply.ExternalIPAddress)
	if addr == nil {
		return nil, errors.New("upnp: unable to parse external ip address")
	}
	return addr, nil
}

// AddPortMapping implements NAT. leaseDuration is in seconds.
//
// Re-forwarding an already-mapped port is a no-op on most routers; if the
// internal port is already mapped under a different external port some
// routers reply with SOAP error code 718.
func (n *upnpNAT) AddPortMapping(protocol string, internalIP net.IP, internalPort, externalPort uint16, description string, leaseDuration int) (mappedExternalPort uint16, err error) {
	// Built incrementally: a single concatenation broke on an ARM cross build once.
	message := "<u:AddPortMapping xmlns:u=\"urn:" + n.urnDomain + ":service:WANIPConnection:1\">\r\n" +
		"<NewRemoteHost></NewRemoteHost><NewExternalPort>" + strconv.Itoa(int(externalPort))
	message += "</NewExternalPort><NewProtocol>" + strings.ToUpper(protocol) + "</NewProtocol>"
	message += "<NewInternalPort>" + strconv.Itoa(int(internalPort)) + "</NewInternalPort>" +
		"<NewInternalClient>" + internalIP.String() + "</NewInternalClient>" +
		"<NewEnabled>1</NewEnabled><NewPortMappingDescription>"
	message += description +
		"</NewPortMappingDescription><NewLeaseDuration>" + strconv.Itoa(leaseDuration) +
		"</NewLeaseDuration></u:AddPortMapping>"

	response, err := n.soapRequest(n.serviceURL, "AddPortMapping", message, n.urnDomain)
	if err != nil {
		// A router that requires manual UPnP opt-in returns SOAP error 606.
		return
	}

	// A fixed (non-wildcard) external port is echoed back verbatim by every
	// router we've seen reply at all, so there is nothing useful to parse
	// out of response beyond confirming the request didn't error.
	mappedExternalPort = externalPort
	_ = response

	return mappedExternalPort, err
}

// DeletePortMapping implements NAT.
func (n *upnpNAT) DeletePortMapping(protocol string, externalPort uint16) (err error) {

	message := "<u:DeletePortMapping xmlns:u=\"urn:" + n.urnDomain + ":service:WANIPConnection:1\">\r\n" +
		"<NewRemoteHost></NewRemoteHost><NewExternalPort>" + strconv.Itoa(int(externalPort)) +
		"</NewExternalPort><NewProtocol>" + strings.ToUpper(protocol) + "</NewProtocol>" +
		"</u:DeletePortMapping>"

	response, err := n.soapRequest(n.serviceURL, "DeletePortMapping", message, n.urnDomain)
	if err != nil {
		return
	}

	_ = response
	return
}
