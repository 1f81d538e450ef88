package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
)

const (
	FakeUDN              = "uuid:5f9ec1b3-ed59-4a8a-9f06-3b2e6c7f5a10"
	FakeFriendlyName     = "Living Room"
	FakeRenderingControl = "urn:schemas-upnp-org:service:RenderingControl:1"
	FakeAVTransport      = "urn:schemas-upnp-org:service:AVTransport:1"
	FakeSID              = "uuid:sub-0001"
)

// FakeDescription is the description document served by FakeDevice. The
// AVTransport service sits in an embedded device and uses relative URLs.
// The RenderingControl serviceType is pretty-printed on its own line.
const FakeDescription = `<?xml version="1.0" encoding="utf-8"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <friendlyName>Living Room</friendlyName>
    <manufacturer>Acme</manufacturer>
    <modelName>Renderer 2000</modelName>
    <UDN>uuid:5f9ec1b3-ed59-4a8a-9f06-3b2e6c7f5a10</UDN>
    <serviceList>
      <service>
        <serviceType>
          urn:schemas-upnp-org:service:RenderingControl:1
        </serviceType>
        <serviceId>urn:upnp-org:serviceId:RenderingControl</serviceId>
        <SCPDURL>/rc/scpd.xml</SCPDURL>
        <controlURL>/rc/control</controlURL>
        <eventSubURL>/rc/event</eventSubURL>
      </service>
    </serviceList>
    <deviceList>
      <device>
        <deviceType>urn:schemas-upnp-org:device:MediaPlayer:1</deviceType>
        <friendlyName>Living Room Player</friendlyName>
        <UDN>uuid:5f9ec1b3-ed59-4a8a-9f06-3b2e6c7f5a11</UDN>
        <serviceList>
          <service>
            <serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
            <serviceId>urn:upnp-org:serviceId:AVTransport</serviceId>
            <SCPDURL>avt/scpd.xml</SCPDURL>
            <controlURL>avt/control</controlURL>
            <eventSubURL></eventSubURL>
          </service>
        </serviceList>
      </device>
    </deviceList>
  </device>
</root>`

// FakeRenderingControlSCPD declares GetVolume and SetVolume. Counter uses a
// UPnP 2.0 type and no argument refers to it.
const FakeRenderingControlSCPD = `<?xml version="1.0" encoding="utf-8"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>GetVolume</name>
      <argumentList>
        <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
        <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
        <argument><name>CurrentVolume</name><direction>out</direction><relatedStateVariable>Volume</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action>
      <name>SetVolume</name>
      <argumentList>
        <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
        <argument><name>Channel</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Channel</relatedStateVariable></argument>
        <argument><name>DesiredVolume</name><direction>in</direction><relatedStateVariable>Volume</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_InstanceID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable sendEvents="no">
      <name>A_ARG_TYPE_Channel</name>
      <dataType>string</dataType>
      <allowedValueList><allowedValue>Master</allowedValue><allowedValue>LF</allowedValue><allowedValue>RF</allowedValue></allowedValueList>
    </stateVariable>
    <stateVariable sendEvents="yes">
      <name>Volume</name>
      <dataType>ui2</dataType>
      <allowedValueRange><minimum>0</minimum><maximum>100</maximum><step>1</step></allowedValueRange>
    </stateVariable>
    <stateVariable sendEvents="yes"><name>Counter</name><dataType>ui8</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

// FakeAVTransportSCPD declares Play and Stop.
const FakeAVTransportSCPD = `<?xml version="1.0" encoding="utf-8"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>Play</name>
      <argumentList>
        <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
        <argument><name>Speed</name><direction>in</direction><relatedStateVariable>TransportPlaySpeed</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action>
      <name>Stop</name>
      <argumentList>
        <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_InstanceID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable sendEvents="no">
      <name>TransportPlaySpeed</name>
      <dataType>string</dataType>
      <allowedValueList><allowedValue>1</allowedValue></allowedValueList>
    </stateVariable>
  </serviceStateTable>
</scpd>`

const fakeFault = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><s:Fault><faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring>
<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>401</errorCode><errorDescription>Invalid Action</errorDescription></UPnPError></detail>
</s:Fault></s:Body></s:Envelope>`

// FakeCall is one SOAP request received by FakeDevice.
type FakeCall struct {
	Path       string
	SOAPAction string
	Body       string
}

// FakeDevice is an HTTP server that behaves like a small media renderer.
type FakeDevice struct {
	Server *httptest.Server

	mu                  sync.Mutex
	descriptionStatus   int
	descriptionRequests int
	unavailable         int
	calls               []FakeCall
	subscribeHeaders    []http.Header
	unsubscribed        []string
}

// NewFakeDevice starts a FakeDevice. Callers must Close it.
func NewFakeDevice() *FakeDevice {
	d := &FakeDevice{}
	mux := http.NewServeMux()
	mux.HandleFunc("/desc.xml", d.serveDescription)
	mux.HandleFunc("/rc/scpd.xml", serveXML(FakeRenderingControlSCPD))
	mux.HandleFunc("/avt/scpd.xml", serveXML(FakeAVTransportSCPD))
	mux.HandleFunc("/rc/control", d.serveControl)
	mux.HandleFunc("/avt/control", d.serveControl)
	mux.HandleFunc("/rc/event", d.serveEvent)
	d.Server = httptest.NewServer(mux)
	return d
}

// Location returns the description URL, as an SSDP LOCATION header would.
func (d *FakeDevice) Location() string {
	return d.Server.URL + "/desc.xml"
}

// Close stops the server.
func (d *FakeDevice) Close() {
	d.Server.Close()
}

// SetDescriptionStatus makes the description URL answer with status. 0 restores normal service.
func (d *FakeDevice) SetDescriptionStatus(status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.descriptionStatus = status
}

// FailCalls makes the next n SOAP requests answer 503 without a body.
func (d *FakeDevice) FailCalls(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unavailable = n
}

// DescriptionRequests returns how often the description was fetched.
func (d *FakeDevice) DescriptionRequests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.descriptionRequests
}

// Calls returns the SOAP requests received so far.
func (d *FakeDevice) Calls() []FakeCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]FakeCall(nil), d.calls...)
}

// SubscribeHeaders returns the headers of every SUBSCRIBE request.
func (d *FakeDevice) SubscribeHeaders() []http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]http.Header(nil), d.subscribeHeaders...)
}

// Unsubscribed returns the SIDs of every UNSUBSCRIBE request.
func (d *FakeDevice) Unsubscribed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.unsubscribed...)
}

func serveXML(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		_, _ = io.WriteString(w, body)
	}
}

func (d *FakeDevice) serveDescription(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.descriptionRequests++
	status := d.descriptionStatus
	d.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	serveXML(FakeDescription)(w, r)
}

var volumePattern = regexp.MustCompile(`<DesiredVolume>(\d+)</DesiredVolume>`)

func (d *FakeDevice) serveControl(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	soapAction := r.Header.Get("SOAPACTION")

	d.mu.Lock()
	d.calls = append(d.calls, FakeCall{Path: r.URL.Path, SOAPAction: soapAction, Body: string(body)})
	unavailable := d.unavailable > 0
	if unavailable {
		d.unavailable--
	}
	d.mu.Unlock()

	if unavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	_, action, _ := strings.Cut(strings.Trim(soapAction, `"`), "#")
	urn := FakeRenderingControl
	if strings.HasPrefix(r.URL.Path, "/avt") {
		urn = FakeAVTransport
	}

	var inner string
	switch action {
	case "GetVolume":
		inner = "<CurrentVolume>42</CurrentVolume>"
	case "SetVolume":
		if m := volumePattern.FindStringSubmatch(string(body)); m == nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, fakeFault)
			return
		}
	case "Play", "Stop":
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, fakeFault)
		return
	}

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><u:%sResponse xmlns:u="%s">%s</u:%sResponse></s:Body></s:Envelope>`, action, urn, inner, action)
}

func (d *FakeDevice) serveEvent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "SUBSCRIBE":
		d.mu.Lock()
		d.subscribeHeaders = append(d.subscribeHeaders, r.Header.Clone())
		d.mu.Unlock()
		w.Header().Set("SID", FakeSID)
		w.Header().Set("TIMEOUT", "Second-1800")
		w.WriteHeader(http.StatusOK)
	case "UNSUBSCRIBE":
		sid := r.Header.Get("SID")
		if sid != FakeSID {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		d.mu.Lock()
		d.unsubscribed = append(d.unsubscribed, sid)
		d.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
