// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
)

// FileServiceName is the registered name of the file service.
const FileServiceName = "file-service"

// NewFileService returns a service that reads and writes files below root.
// Paths are resolved relative to root and may not escape it.
func NewFileService(root string) (module.Module, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create file service root: %w", err)
	}
	fs := &fileService{root: abs}

	pathProp := func(verb string) map[string]any {
		return module.StringProp("The path to the file that should be " + verb)
	}
	dataProp := func(verb string) map[string]any {
		return module.StringProp("The data to be " + verb + " to the file")
	}

	return module.New(module.KindService, FileServiceName, "Performs file operations on the local file system",
		module.Method{
			Name:        "readFile",
			Description: "read a file and get its bytes, base64 encoded, as a response",
			Parameters:  module.Object(map[string]any{"path": pathProp("read")}, "path"),
			Perform: func(_ context.Context, args module.Args) (any, error) {
				data, err := fs.read(args.String("path"))
				if err != nil {
					return nil, err
				}
				return base64.StdEncoding.EncodeToString(data), nil
			},
		},
		module.Method{
			Name:        "readFileAsString",
			Description: "read a file and get a string as a response",
			Parameters:  module.Object(map[string]any{"path": pathProp("read")}, "path"),
			Perform: func(_ context.Context, args module.Args) (any, error) {
				data, err := fs.read(args.String("path"))
				if err != nil {
					return nil, err
				}
				return string(data), nil
			},
		},
		module.Method{
			Name:        "writeFile",
			Description: "write data to a file",
			Parameters: module.Object(map[string]any{
				"path": pathProp("written"),
				"data": dataProp("written"),
			}, "path", "data"),
			Perform: func(_ context.Context, args module.Args) (any, error) {
				if err := fs.write(args.String("path"), args.String("data"), false); err != nil {
					return nil, err
				}
				return "File has been successfully written.", nil
			},
		},
		module.Method{
			Name:        "appendToFile",
			Description: "append data to an existing file",
			Parameters: module.Object(map[string]any{
				"path": pathProp("appended"),
				"data": dataProp("appended"),
			}, "path", "data"),
			Perform: func(_ context.Context, args module.Args) (any, error) {
				if err := fs.write(args.String("path"), args.String("data"), true); err != nil {
					return nil, err
				}
				return "Data has been successfully appended to the file.", nil
			},
		},
	), nil
}

type fileService struct {
	root string
}

func (f *fileService) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New(errors.CodeInvalidInput, "path is required", nil)
	}
	full := filepath.Join(f.root, filepath.Clean("/"+path))
	if full != f.root && !strings.HasPrefix(full, f.root+string(filepath.Separator)) {
		return "", errors.New(errors.CodeInvalidInput, "path escapes the service root", nil).
			WithContext("path", path)
	}
	return full, nil
}

func (f *fileService) read(path string) ([]byte, error) {
	full, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (f *fileService) write(path, data string, appendMode bool) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
