package engine

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"

	iface "ParkSlotServer/interface"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

const (
	KindONNX   = "onnx"
	KindRemote = "remote"
)

const (
	LayoutYOLOv5  = "yolov5"
	LayoutYOLOv8  = "yolov8"
	LayoutYOLOv10 = "yolov10"
)

const DefaultInputSize = 640

func StateName(state int) string {
	switch state {
	case UNREGISTERED:
		return "unregistered"
	case REGISTERED:
		return "registered"
	case IDLE:
		return "idle"
	case BUSY:
		return "busy"
	}
	return "unknown"
}

// ReadLinesReadFile returns the non-empty lines of path.
func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// tolerate CRLF
	raw := strings.Split(string(b), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// ResolveNames reads class names from a file or takes them from a slice.
func ResolveNames(names iface.NamesConf) ([]string, error) {
	if names.Data == nil {
		return nil, nil
	}
	if names.IsFile {
		path, ok := names.Data.(string)
		if !ok {
			return nil, fmt.Errorf("names file must be a path, got %T", names.Data)
		}
		return ReadLinesReadFile(path)
	}
	rv := reflect.ValueOf(names.Data)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("names must be a slice or a file path, got %T", names.Data)
	}
	out := make([]string, rv.Len())
	for i := range out {
		s, ok := rv.Index(i).Interface().(string)
		if !ok {
			return nil, fmt.Errorf("names[%d] is %T, want string", i, rv.Index(i).Interface())
		}
		out[i] = s
	}
	return out, nil
}

func className(names []string, idx int) string {
	if idx >= 0 && idx < len(names) {
		return names[idx]
	}
	return fmt.Sprintf("%d", idx)
}

// keepClass reports whether class passes the filter. An empty filter keeps everything.
func keepClass(filter []string, class string) bool {
	return len(filter) == 0 || slices.Contains(filter, class)
}
