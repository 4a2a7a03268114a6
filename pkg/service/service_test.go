// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
)

func call(t *testing.T, m module.Module, method string, args module.Args) (any, error) {
	t.Helper()
	meth, ok := module.FindMethod(m, method)
	if !ok {
		t.Fatalf("method %s not found on %s", method, m.Name())
	}
	return module.NewValidator().Invoke(context.Background(), m.Name(), meth, args)
}

func TestFileService(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileService(root)
	if err != nil {
		t.Fatalf("NewFileService: %v", err)
	}

	if _, err := call(t, fs, "writeFile", module.Args{"path": "notes/todo.txt", "data": "buy milk"}); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	if _, err := call(t, fs, "appendToFile", module.Args{"path": "notes/todo.txt", "data": "\ncall mom"}); err != nil {
		t.Fatalf("appendToFile: %v", err)
	}
	out, err := call(t, fs, "readFileAsString", module.Args{"path": "notes/todo.txt"})
	if err != nil || out != "buy milk\ncall mom" {
		t.Fatalf("unexpected content %q %v", out, err)
	}
	out, err = call(t, fs, "readFile", module.Args{"path": "notes/todo.txt"})
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(out.(string))
	if string(raw) != "buy milk\ncall mom" {
		t.Fatalf("unexpected bytes %q", raw)
	}

	if _, err := os.Stat(filepath.Join(root, "notes", "todo.txt")); err != nil {
		t.Fatalf("file not written under root: %v", err)
	}
}

func TestFileServiceStaysInRoot(t *testing.T) {
	root := t.TempDir()
	fs, _ := NewFileService(root)
	if _, err := call(t, fs, "writeFile", module.Args{"path": "../../escape.txt", "data": "x"}); err != nil {
		t.Fatalf("cleaned path should be written inside root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Fatalf("expected file clamped to root: %v", err)
	}
	if _, err := call(t, fs, "writeFile", module.Args{"path": "x.txt"}); !errors.HasCode(err, errors.CodeSchemaViolation) {
		t.Fatalf("missing data should violate schema, got %v", err)
	}
}

func TestHTTPService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]string{"q": r.URL.Query().Get("q")})
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["name"] != "onyx" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte("created"))
		}
	}))
	defer srv.Close()

	hs := NewHTTPService()
	out, err := call(t, hs, "get", module.Args{"url": srv.URL, "params": map[string]any{"q": "weather"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m, ok := out.(map[string]any); !ok || m["q"] != "weather" {
		t.Fatalf("unexpected get result %#v", out)
	}

	out, err = call(t, hs, "post", module.Args{"url": srv.URL, "data": map[string]any{"name": "onyx"}})
	if err != nil || out != "created" {
		t.Fatalf("unexpected post result %v %v", out, err)
	}

	_, err = call(t, hs, "post", module.Args{"url": srv.URL, "data": map[string]any{"name": "other"}})
	if !errors.HasCode(err, errors.CodeActionFailed) {
		t.Fatalf("expected action failure for 400, got %v", err)
	}

	_, err = call(t, hs, "get", module.Args{"url": "ftp://example.com"})
	if err == nil {
		t.Fatalf("non-http url should be rejected")
	}
}

func TestEmailService(t *testing.T) {
	var sent []Email
	es := NewEmailService(SenderFunc(func(_ context.Context, e Email) error {
		sent = append(sent, e)
		return nil
	}))
	out, err := call(t, es, "sendEmail", module.Args{"recipient": "ana@example.com", "subject": "Hi", "content": "Hello"})
	if err != nil || !strings.Contains(out.(string), "ana@example.com") {
		t.Fatalf("unexpected result %v %v", out, err)
	}
	if len(sent) != 1 || sent[0].Subject != "Hi" {
		t.Fatalf("unexpected sent %+v", sent)
	}
	if _, err := call(t, es, "sendEmail", module.Args{"recipient": "nobody", "subject": "x", "content": "y"}); err == nil {
		t.Fatalf("invalid recipient should fail")
	}
}

func TestSMTPSender(t *testing.T) {
	var gotAddr string
	var gotMsg []byte
	s := &SMTPSender{Host: "smtp.example.com", Username: "bot@example.com", Password: "pw"}
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		if from != "bot@example.com" || to[0] != "ana@example.com" {
			t.Fatalf("unexpected envelope %s %v", from, to)
		}
		return nil
	}
	if err := s.Send(context.Background(), Email{Recipient: "ana@example.com", Subject: "Hi\nthere", Content: "body"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected addr %s", gotAddr)
	}
	if !strings.Contains(string(gotMsg), "Subject: Hi there\r\n") || !strings.HasSuffix(string(gotMsg), "body") {
		t.Fatalf("unexpected message %q", gotMsg)
	}
}

func TestManagerRegisterAll(t *testing.T) {
	m := NewManager()
	if err := m.RegisterAll(NewHTTPService(), NewEmailService(LogSender(nil))); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if err := m.RegisterAll(NewHTTPService()); !errors.HasCode(err, errors.CodeDuplicateName) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("unexpected size %d", m.Len())
	}
}
