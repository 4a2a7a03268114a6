// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
)

// HTTPServiceName is the registered name of the HTTP service.
const HTTPServiceName = "http-service"

// maxResponseBytes bounds how much of a response body is returned.
const maxResponseBytes = 1 << 20

// HTTPOption configures the HTTP service.
type HTTPOption func(*httpService)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *httpService) {
		if c != nil {
			s.client = c
		}
	}
}

// WithHTTPTimeout sets the per-request timeout of the default client.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(s *httpService) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

// NewHTTPService returns a service making GET and POST requests.
func NewHTTPService(opts ...HTTPOption) module.Module {
	s := &httpService{client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(s)
	}

	urlProp := module.StringProp("the url to make the request to.")
	paramsProp := module.ObjectProp("the query parameters to send with the request.")

	return module.New(module.KindService, HTTPServiceName, "Make HTTP requests to web APIs.",
		module.Method{
			Name:        "get",
			Description: "make a get request.",
			Parameters:  module.Object(map[string]any{"url": urlProp, "params": paramsProp}, "url"),
			Perform: func(ctx context.Context, args module.Args) (any, error) {
				return s.do(ctx, http.MethodGet, args.String("url"), args.Map("params"), nil)
			},
		},
		module.Method{
			Name:        "post",
			Description: "make a post request.",
			Parameters: module.Object(map[string]any{
				"url":    urlProp,
				"data":   module.ObjectProp("the data to send with the request."),
				"params": paramsProp,
			}, "url", "data"),
			Perform: func(ctx context.Context, args module.Args) (any, error) {
				return s.do(ctx, http.MethodPost, args.String("url"), args.Map("params"), args["data"])
			},
		},
	)
}

type httpService struct {
	client *http.Client
}

func (s *httpService) do(ctx context.Context, method, rawURL string, params map[string]any, data any) (any, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.New(errors.CodeInvalidInput, "url must be an absolute http(s) url", err).
			WithContext("url", rawURL)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeActionFailed, "http request failed", err).WithRecoverable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errors.New(errors.CodeActionFailed, fmt.Sprintf("http %d: %s", resp.StatusCode, bytes.TrimSpace(raw)), nil).
			WithContext("status", resp.StatusCode).
			WithRecoverable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		return decoded, nil
	}
	return string(raw), nil
}
