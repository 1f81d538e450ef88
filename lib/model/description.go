package model

import (
	"encoding/xml"
	"strings"
)

const (
	DeviceXMLNamespace  = "urn:schemas-upnp-org:device-1-0"
	ServiceXMLNamespace = "urn:schemas-upnp-org:service-1-0"
	EventXMLNamespace   = "urn:schemas-upnp-org:event-1-0"
)

// RootDescription is the device description document served at a LOCATION URL.
type RootDescription struct {
	XMLName xml.Name          `xml:"root"`
	URLBase string            `xml:"URLBase"`
	Device  DeviceDescription `xml:"device"`
}

// DeviceDescription is the content of the "device" element of a description document.
type DeviceDescription struct {
	DeviceType       string               `xml:"deviceType" json:"device_type" yaml:"device_type"`
	FriendlyName     string               `xml:"friendlyName" json:"friendly_name" yaml:"friendly_name"`
	Manufacturer     string               `xml:"manufacturer" json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	ManufacturerURL  string               `xml:"manufacturerURL" json:"manufacturer_url,omitempty" yaml:"manufacturer_url,omitempty"`
	ModelDescription string               `xml:"modelDescription" json:"model_description,omitempty" yaml:"model_description,omitempty"`
	ModelName        string               `xml:"modelName" json:"model_name,omitempty" yaml:"model_name,omitempty"`
	ModelNumber      string               `xml:"modelNumber" json:"model_number,omitempty" yaml:"model_number,omitempty"`
	SerialNumber     string               `xml:"serialNumber" json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	UDN              string               `xml:"UDN" json:"udn" yaml:"udn"`
	PresentationURL  string               `xml:"presentationURL" json:"presentation_url,omitempty" yaml:"presentation_url,omitempty"`
	Services         []ServiceDescription `xml:"serviceList>service" json:"services,omitempty" yaml:"services,omitempty"`
	Devices          []DeviceDescription  `xml:"deviceList>device" json:"devices,omitempty" yaml:"devices,omitempty"`
}

// ServiceDescription is one entry of a device's serviceList.
type ServiceDescription struct {
	ServiceType string `xml:"serviceType" json:"service_type" yaml:"service_type"`
	ServiceID   string `xml:"serviceId" json:"service_id" yaml:"service_id"`
	SCPDURL     string `xml:"SCPDURL" json:"scpd_url" yaml:"scpd_url"`
	ControlURL  string `xml:"controlURL" json:"control_url" yaml:"control_url"`
	EventSubURL string `xml:"eventSubURL" json:"event_sub_url" yaml:"event_sub_url"`
}

// Clean trims the whitespace pretty-printed documents leave around element text.
func (r *RootDescription) Clean() {
	r.URLBase = strings.TrimSpace(r.URLBase)
	r.Device.clean()
}

func (d *DeviceDescription) clean() {
	for _, f := range []*string{
		&d.DeviceType, &d.FriendlyName, &d.Manufacturer, &d.ManufacturerURL,
		&d.ModelDescription, &d.ModelName, &d.ModelNumber, &d.SerialNumber,
		&d.UDN, &d.PresentationURL,
	} {
		*f = strings.TrimSpace(*f)
	}
	for i := range d.Services {
		s := &d.Services[i]
		s.ServiceType = strings.TrimSpace(s.ServiceType)
		s.ServiceID = strings.TrimSpace(s.ServiceID)
		s.SCPDURL = strings.TrimSpace(s.SCPDURL)
		s.ControlURL = strings.TrimSpace(s.ControlURL)
		s.EventSubURL = strings.TrimSpace(s.EventSubURL)
	}
	for i := range d.Devices {
		d.Devices[i].clean()
	}
}

// FindService walks the device tree depth-first and returns the first
// service of the given type.
func (d *DeviceDescription) FindService(serviceType string) (ServiceDescription, bool) {
	for _, s := range d.Services {
		if s.ServiceType == serviceType {
			return s, true
		}
	}
	for i := range d.Devices {
		if s, ok := d.Devices[i].FindService(serviceType); ok {
			return s, true
		}
	}
	return ServiceDescription{}, false
}
