package engine

import (
	"fmt"

	"ParkSlotServer/geometry"
)

type candidate struct {
	box   geometry.Box
	score float32
	class int
}

// decodeOutput turns a raw detection tensor into scored boxes in input
// pixel space, dropping anything below conf.
func decodeOutput(layout string, data []float32, shape []int, conf float32) ([]candidate, error) {
	switch layout {
	case LayoutYOLOv5:
		return decodeRowMajor(data, shape, conf, true)
	case LayoutYOLOv8, "":
		return decodeChannelMajor(data, shape, conf)
	case LayoutYOLOv10:
		return decodeEndToEnd(data, shape, conf)
	}
	return nil, fmt.Errorf("unsupported output layout: %s", layout)
}

// dims3 checks a [1, a, b] shape and returns a, b.
func dims3(data []float32, shape []int) (int, int, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return 0, 0, fmt.Errorf("unexpected output shape %v", shape)
	}
	if len(data) < shape[1]*shape[2] {
		return 0, 0, fmt.Errorf("output has %d values, shape %v needs %d", len(data), shape, shape[1]*shape[2])
	}
	return shape[1], shape[2], nil
}

func xywh(cx, cy, w, h float32) geometry.Box {
	return geometry.Box{
		X1: float64(cx - w/2),
		Y1: float64(cy - h/2),
		X2: float64(cx + w/2),
		Y2: float64(cy + h/2),
	}
}

// decodeChannelMajor reads [1, 4+nc, n]: cx, cy, w, h then one score per class.
// YOLOv8 and YOLOv11 exports use it.
func decodeChannelMajor(data []float32, shape []int, conf float32) ([]candidate, error) {
	channels, n, err := dims3(data, shape)
	if err != nil {
		return nil, err
	}
	if channels < 5 {
		return nil, fmt.Errorf("channel-major output needs at least 5 channels, got %d", channels)
	}
	at := func(c, i int) float32 { return data[c*n+i] }
	var out []candidate
	for i := 0; i < n; i++ {
		best, cls := float32(0), -1
		for c := 4; c < channels; c++ {
			if s := at(c, i); s > best {
				best, cls = s, c-4
			}
		}
		if cls < 0 || best < conf {
			continue
		}
		out = append(out, candidate{
			box:   xywh(at(0, i), at(1, i), at(2, i), at(3, i)),
			score: best,
			class: cls,
		})
	}
	return out, nil
}

// decodeRowMajor reads [1, n, 5+nc]: cx, cy, w, h, objectness, class scores.
func decodeRowMajor(data []float32, shape []int, conf float32, objectness bool) ([]candidate, error) {
	n, width, err := dims3(data, shape)
	if err != nil {
		return nil, err
	}
	first := 4
	if objectness {
		first = 5
	}
	if width <= first {
		return nil, fmt.Errorf("row-major output needs more than %d values per row, got %d", first, width)
	}
	var out []candidate
	for i := 0; i < n; i++ {
		row := data[i*width : (i+1)*width]
		obj := float32(1)
		if objectness {
			obj = row[4]
			if obj < conf {
				continue
			}
		}
		best, cls := float32(0), -1
		for c := first; c < width; c++ {
			if s := row[c] * obj; s > best {
				best, cls = s, c-first
			}
		}
		if cls < 0 || best < conf {
			continue
		}
		out = append(out, candidate{box: xywh(row[0], row[1], row[2], row[3]), score: best, class: cls})
	}
	return out, nil
}

// decodeEndToEnd reads [1, n, 6]: x1, y1, x2, y2, score, class. The model
// has already suppressed duplicates.
func decodeEndToEnd(data []float32, shape []int, conf float32) ([]candidate, error) {
	n, width, err := dims3(data, shape)
	if err != nil {
		return nil, err
	}
	if width < 6 {
		return nil, fmt.Errorf("end-to-end output needs 6 values per row, got %d", width)
	}
	var out []candidate
	for i := 0; i < n; i++ {
		row := data[i*width : (i+1)*width]
		if row[4] < conf {
			continue
		}
		out = append(out, candidate{
			box:   geometry.Box{X1: float64(row[0]), Y1: float64(row[1]), X2: float64(row[2]), Y2: float64(row[3])},
			score: row[4],
			class: int(row[5]),
		})
	}
	return out, nil
}
