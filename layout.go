package ctrlr_kinematics

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	statusSize  = 4
	statusAlign = 4 // padding after the status so the first double is 8-byte aligned
	floatSize   = 8
)

// Layout describes a fixed positional payload: an optional int32 status code followed by
// a run of float64 values. All multi-byte values are little-endian.
type Layout struct {
	Name   string
	Status bool
	Floats int
}

var (
	FKRequestLayout    = Layout{Name: "fkine_request", Floats: JointCount}
	FKResponseLayout   = Layout{Name: "fkine_response", Status: true, Floats: PoseLength}
	IKRequestLayout    = Layout{Name: "ikine_request", Floats: PoseLength}
	IKResponseLayout   = Layout{Name: "ikine_response", Status: true, Floats: SolutionCount * JointCount}
	LastPositionLayout = Layout{Name: "last_position", Floats: JointCount}
)

// Size returns the exact number of bytes a payload with this layout occupies.
func (l Layout) Size() int {
	n := l.Floats * floatSize
	if l.Status {
		n += statusSize + statusAlign
	}
	return n
}

// Reply is a decoded controller response.
type Reply struct {
	Status int32
	Values []float64
}

// OK reports whether the controller reported success.
func (r Reply) OK() bool {
	return r.Status == 0
}

// Encode packs values into a request payload. Layouts with a status field are
// responses only and cannot be encoded.
func (l Layout) Encode(values ...float64) ([]byte, error) {
	if l.Status {
		return nil, errors.Errorf("layout %s carries a status and cannot be encoded as a request", l.Name)
	}
	if len(values) != l.Floats {
		return nil, errors.Errorf("layout %s expects %d values, got %d", l.Name, l.Floats, len(values))
	}
	buf := make([]byte, l.Size())
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*floatSize:], math.Float64bits(v))
	}
	return buf, nil
}

// Decode unpacks a response payload. The payload must be exactly Size() bytes.
func (l Layout) Decode(payload []byte) (Reply, error) {
	if len(payload) != l.Size() {
		return Reply{}, errors.Errorf("layout %s expects %d bytes, got %d", l.Name, l.Size(), len(payload))
	}
	var reply Reply
	offset := 0
	if l.Status {
		reply.Status = int32(binary.LittleEndian.Uint32(payload))
		offset = statusSize + statusAlign
	}
	reply.Values = make([]float64, l.Floats)
	for i := range reply.Values {
		reply.Values[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[offset+i*floatSize:]))
	}
	return reply, nil
}
