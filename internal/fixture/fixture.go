// Package fixture reads and writes shape sets used as regression inputs.
//
// Two encodings are supported. The text form holds one shape per line:
//
//	circle,x,y,radius[,vx,vy]
//	box,x,y,halfW,halfH[,vx,vy]
//
// Blank lines and lines starting with # are ignored. The binary form is a
// msgpack array of Spec values.
package fixture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"collide2d/internal/world"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed marks input that does not follow the fixture grammar.
var ErrMalformed = errors.New("malformed fixture")

// Spec is the serialized form of one body.
type Spec struct {
	Kind   string  `msgpack:"kind" json:"kind"`
	X      float64 `msgpack:"x" json:"x"`
	Y      float64 `msgpack:"y" json:"y"`
	Radius float64 `msgpack:"r,omitempty" json:"radius,omitempty"`
	HalfW  float64 `msgpack:"hw,omitempty" json:"halfW,omitempty"`
	HalfH  float64 `msgpack:"hh,omitempty" json:"halfH,omitempty"`
	VX     float64 `msgpack:"vx,omitempty" json:"vx,omitempty"`
	VY     float64 `msgpack:"vy,omitempty" json:"vy,omitempty"`
}

// Validate checks the kind and that every number is finite and extents are
// not negative.
func (s Spec) Validate() error {
	for _, v := range []float64{s.X, s.Y, s.Radius, s.HalfW, s.HalfH, s.VX, s.VY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrMalformed)
		}
	}
	switch s.Kind {
	case "circle":
		if s.Radius < 0 {
			return fmt.Errorf("%w: negative radius %v", ErrMalformed, s.Radius)
		}
	case "box":
		if s.HalfW < 0 || s.HalfH < 0 {
			return fmt.Errorf("%w: negative half extent %vx%v", ErrMalformed, s.HalfW, s.HalfH)
		}
	default:
		return fmt.Errorf("%w: unknown shape %q", ErrMalformed, s.Kind)
	}
	return nil
}

// =============================================================================
// TEXT CODEC
// =============================================================================

// ParseText reads the line-per-shape form. Errors carry the line number.
func ParseText(r io.Reader) ([]Spec, error) {
	var specs []Spec
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		spec, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		specs = append(specs, spec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return specs, nil
}

func parseLine(text string) (Spec, error) {
	fields := strings.Split(text, ",")
	kind := strings.ToLower(strings.TrimSpace(fields[0]))

	nums := make([]float64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: bad number %q", ErrMalformed, strings.TrimSpace(f))
		}
		nums = append(nums, v)
	}

	var spec Spec
	switch kind {
	case "circle":
		if len(nums) != 3 && len(nums) != 5 {
			return Spec{}, fmt.Errorf("%w: circle wants 3 or 5 numbers, got %d", ErrMalformed, len(nums))
		}
		spec = Spec{Kind: kind, X: nums[0], Y: nums[1], Radius: nums[2]}
		if len(nums) == 5 {
			spec.VX, spec.VY = nums[3], nums[4]
		}
	case "box":
		if len(nums) != 4 && len(nums) != 6 {
			return Spec{}, fmt.Errorf("%w: box wants 4 or 6 numbers, got %d", ErrMalformed, len(nums))
		}
		spec = Spec{Kind: kind, X: nums[0], Y: nums[1], HalfW: nums[2], HalfH: nums[3]}
		if len(nums) == 6 {
			spec.VX, spec.VY = nums[4], nums[5]
		}
	default:
		return Spec{}, fmt.Errorf("%w: unknown shape %q", ErrMalformed, kind)
	}
	return spec, spec.Validate()
}

// WriteText writes specs in the line-per-shape form. Velocity columns are
// omitted for bodies at rest.
func WriteText(w io.Writer, specs []Spec) error {
	bw := bufio.NewWriter(w)
	for _, s := range specs {
		var fields []float64
		switch s.Kind {
		case "circle":
			fields = []float64{s.X, s.Y, s.Radius}
		case "box":
			fields = []float64{s.X, s.Y, s.HalfW, s.HalfH}
		default:
			return fmt.Errorf("%w: unknown shape %q", ErrMalformed, s.Kind)
		}
		if s.VX != 0 || s.VY != 0 {
			fields = append(fields, s.VX, s.VY)
		}
		bw.WriteString(s.Kind)
		for _, f := range fields {
			bw.WriteByte(',')
			bw.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// =============================================================================
// BINARY CODEC
// =============================================================================

// DecodeBinary reads a msgpack-encoded fixture.
func DecodeBinary(r io.Reader) ([]Spec, error) {
	var specs []Spec
	if err := msgpack.NewDecoder(r).Decode(&specs); err != nil {
		return nil, fmt.Errorf("decode msgpack fixture: %w", err)
	}
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
	}
	return specs, nil
}

// EncodeBinary writes specs as msgpack.
func EncodeBinary(w io.Writer, specs []Spec) error {
	if specs == nil {
		specs = []Spec{}
	}
	if err := msgpack.NewEncoder(w).Encode(specs); err != nil {
		return fmt.Errorf("encode msgpack fixture: %w", err)
	}
	return nil
}

// =============================================================================
// FILES
// =============================================================================

// IsBinary reports whether path names a msgpack fixture.
func IsBinary(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return true
	}
	return false
}

// Load reads a fixture file, choosing the codec by extension.
func Load(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load fixture: %w", err)
	}
	var specs []Spec
	if IsBinary(path) {
		specs, err = DecodeBinary(bytes.NewReader(data))
	} else {
		specs, err = ParseText(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// Save writes a fixture file, choosing the codec by extension.
func Save(path string, specs []Spec) error {
	var buf bytes.Buffer
	var err error
	if IsBinary(path) {
		err = EncodeBinary(&buf, specs)
	} else {
		err = WriteText(&buf, specs)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save fixture: %w", err)
	}
	return nil
}

// =============================================================================
// CONVERSION
// =============================================================================

// Bodies builds world bodies from specs. IDs are assigned by the world.
func Bodies(specs []Spec) []*world.Body {
	bodies := make([]*world.Body, len(specs))
	for i, s := range specs {
		pos, vel := mgl64.Vec2{s.X, s.Y}, mgl64.Vec2{s.VX, s.VY}
		if s.Kind == "box" {
			bodies[i] = world.NewBox(pos, vel, s.HalfW, s.HalfH)
		} else {
			bodies[i] = world.NewCircle(pos, vel, s.Radius)
		}
	}
	return bodies
}

// FromBodies captures bodies as specs.
func FromBodies(bodies []*world.Body) []Spec {
	specs := make([]Spec, len(bodies))
	for i, b := range bodies {
		s := Spec{Kind: b.Kind.String(), X: b.Pos[0], Y: b.Pos[1], VX: b.Vel[0], VY: b.Vel[1]}
		if b.Kind == world.BodyBox {
			s.HalfW, s.HalfH = b.HalfW, b.HalfH
		} else {
			s.Radius = b.Radius
		}
		specs[i] = s
	}
	return specs
}
