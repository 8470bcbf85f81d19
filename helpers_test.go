package ctrlr_kinematics

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

// encodeReply builds a controller response payload for layout.
func encodeReply(layout Layout, status int32, values ...float64) []byte {
	buf := make([]byte, layout.Size())
	offset := 0
	if layout.Status {
		binary.LittleEndian.PutUint32(buf, uint32(status))
		offset = statusSize + statusAlign
	}
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[offset+i*floatSize:], math.Float64bits(v))
	}
	return buf
}

type linkCall struct {
	cmd    Command
	values []float64
}

// spyLink answers each command with a scripted reply and records what it was sent.
type spyLink struct {
	mu      sync.Mutex
	calls   []linkCall
	replies map[Command]Reply
	errs    map[Command]error
}

func newSpyLink() *spyLink {
	return &spyLink{
		replies: map[Command]Reply{},
		errs:    map[Command]error{},
	}
}

func (s *spyLink) Exchange(ctx context.Context, cmd Command, payload []byte, layout Layout) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var values []float64
	if len(payload) > 0 {
		req := Layout{Name: "request", Floats: len(payload) / floatSize}
		decoded, err := req.Decode(payload)
		if err != nil {
			return Reply{}, err
		}
		values = decoded.Values
	}
	s.calls = append(s.calls, linkCall{cmd: cmd, values: values})

	if err := s.errs[cmd]; err != nil {
		return Reply{}, err
	}
	reply, ok := s.replies[cmd]
	if !ok {
		return Reply{}, errors.Wrapf(ErrNoResponse, "no scripted reply for %s", cmd)
	}
	return reply, nil
}

func (s *spyLink) callCount(cmd Command) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.cmd == cmd {
			n++
		}
	}
	return n
}

func (s *spyLink) lastCall() linkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// stubJoints is a JointStateProvider with a fixed radian reading.
type stubJoints struct {
	mu     sync.Mutex
	joints JointVector
	err    error
	calls  int
}

func (s *stubJoints) ActualJointPosition(ctx context.Context, units AngleUnit) (JointVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if units == Degrees {
		return RadiansToDegrees(s.joints...), nil
	}
	out := make(JointVector, len(s.joints))
	copy(out, s.joints)
	return out, nil
}

type frame struct {
	cmd     Command
	payload []byte
}

// fakeController serves the controller side of a net.Pipe. handle returns the frame to
// send back, or ok == false to stay silent.
type fakeController struct {
	conn     net.Conn
	received chan frame
	done     chan struct{}
}

func startFakeController(t *testing.T, conn net.Conn, handle func(req frame) (frame, bool)) *fakeController {
	t.Helper()
	fc := &fakeController{
		conn:     conn,
		received: make(chan frame, 16),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(fc.done)
		for {
			header := make([]byte, headerSize)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			req := frame{cmd: Command(binary.LittleEndian.Uint32(header))}
			req.payload = make([]byte, binary.LittleEndian.Uint32(header[4:]))
			if _, err := io.ReadFull(conn, req.payload); err != nil {
				return
			}
			fc.received <- req

			resp, ok := handle(req)
			if !ok {
				continue
			}
			out := make([]byte, headerSize+len(resp.payload))
			binary.LittleEndian.PutUint32(out, uint32(resp.cmd))
			binary.LittleEndian.PutUint32(out[4:], uint32(len(resp.payload)))
			copy(out[headerSize:], resp.payload)
			if _, err := conn.Write(out); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		conn.Close()
		<-fc.done
	})
	return fc
}

// kinematicsController answers forward kinematics with fkPose and inverse kinematics
// with ikValues, echoing the request command.
func kinematicsController(fkPose, ikValues, joints []float64) func(req frame) (frame, bool) {
	return func(req frame) (frame, bool) {
		switch req.cmd {
		case CmdForwardKinematics:
			return frame{cmd: req.cmd, payload: encodeReply(FKResponseLayout, 0, fkPose...)}, true
		case CmdInverseKinematics:
			return frame{cmd: req.cmd, payload: encodeReply(IKResponseLayout, 0, ikValues...)}, true
		case CmdGetLastPosition:
			return frame{cmd: req.cmd, payload: encodeReply(LastPositionLayout, 0, joints...)}, true
		}
		return frame{}, false
	}
}
