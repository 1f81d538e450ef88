package controlpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// FetchDescription downloads and decodes the device description document at location.
func FetchDescription(ctx context.Context, client *http.Client, location string) (*model.RootDescription, error) {
	raw, err := fetch(ctx, client, location)
	if err != nil {
		return nil, err
	}

	var root model.RootDescription
	if err := helper.NewXMLDecoder(bytes.NewReader(raw)).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to decode device description from %s: %w", location, err)
	}
	root.Clean()
	return &root, nil
}

// fetch GETs url and returns the body of a 2xx response.
func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &model.TransportError{URL: url, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &model.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if !helper.IsSuccess(resp.StatusCode) {
		return nil, &model.TransportError{URL: url, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, helper.MaxBodySize))
	if err != nil {
		return nil, &model.TransportError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	return raw, nil
}
