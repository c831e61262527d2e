package nativeimg

import (
	"bytes"
	"errors"
	"io"
	"os"
	"reflect"
)

var (
	errIsDir = errors.New("is a directory")
	errEmpty = errors.New("empty image data")
)

type SourceKind int

const (
	SourcePath SourceKind = iota
	SourceBytes
	SourceReader
)

// ClassifySource reports which of the accepted input shapes src has.
func ClassifySource(src any) (SourceKind, error) {
	switch src.(type) {
	case string:
		return SourcePath, nil
	case []byte:
		return SourceBytes, nil
	case io.Reader:
		if isNil(src) {
			return 0, ErrUnsupportedInput
		}
		return SourceReader, nil
	default:
		return 0, ErrUnsupportedInput
	}
}

// CheckPath verifies that path names a readable regular file.
func CheckPath(backend, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return NewError(ErrNotFound, backend, "open", err)
	}
	if fi.IsDir() {
		return NewError(ErrNotFound, backend, "open", &os.PathError{Op: "open", Path: path, Err: errIsDir})
	}
	return nil
}

// ReadSource loads the whole of src into memory. Readers are read until EOF
// but never closed; they belong to the caller.
func ReadSource(backend string, src any) ([]byte, error) {
	kind, err := ClassifySource(src)
	if err != nil {
		return nil, NewError(ErrUnsupportedInput, backend, "open", nil)
	}

	var b []byte
	switch kind {
	case SourcePath:
		path := src.(string)
		if err := CheckPath(backend, path); err != nil {
			return nil, err
		}
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, NewError(ErrNotFound, backend, "open", err)
		}
	case SourceBytes:
		b = src.([]byte)
	case SourceReader:
		b, err = io.ReadAll(src.(io.Reader))
		if err != nil {
			return nil, NewError(ErrNotFound, backend, "open", err)
		}
	}

	if len(b) == 0 {
		return nil, NewError(ErrDecode, backend, "open", errEmpty)
	}
	return b, nil
}

// OpenSource returns src as a reader. Paths are opened and must be closed
// with the returned func.
func OpenSource(backend string, src any) (io.Reader, func() error, error) {
	kind, err := ClassifySource(src)
	if err != nil {
		return nil, nil, NewError(ErrUnsupportedInput, backend, "open", nil)
	}

	noop := func() error { return nil }
	switch kind {
	case SourcePath:
		path := src.(string)
		if err := CheckPath(backend, path); err != nil {
			return nil, nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, NewError(ErrNotFound, backend, "open", err)
		}
		return f, f.Close, nil
	case SourceBytes:
		b := src.([]byte)
		if len(b) == 0 {
			return nil, nil, NewError(ErrDecode, backend, "open", errEmpty)
		}
		return bytes.NewReader(b), noop, nil
	default:
		return src.(io.Reader), noop, nil
	}
}

// WriteDestination calls fn with a writer for dst. A path is created or
// truncated and closed afterwards, and removed again if writing fails. An
// io.Writer is only written to.
func WriteDestination(backend string, dst any, fn func(w io.Writer) error) error {
	switch d := dst.(type) {
	case string:
		f, err := os.Create(d)
		if err != nil {
			return NewError(ErrWrite, backend, "save", err)
		}
		if err := fn(f); err != nil {
			f.Close()
			os.Remove(d)
			return err
		}
		if err := f.Close(); err != nil {
			os.Remove(d)
			return NewError(ErrWrite, backend, "save", err)
		}
		return nil
	case io.Writer:
		if isNil(dst) {
			return NewError(ErrUnsupportedInput, backend, "save", nil)
		}
		return fn(d)
	default:
		return NewError(ErrUnsupportedInput, backend, "save", nil)
	}
}

// WriteBlob writes an encoded image to dst.
func WriteBlob(backend string, dst any, blob []byte) error {
	return WriteDestination(backend, dst, func(w io.Writer) error {
		if _, err := w.Write(blob); err != nil {
			return NewError(ErrWrite, backend, "save", err)
		}
		return nil
	})
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
