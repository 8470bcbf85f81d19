package ctrlr_kinematics

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// JointStateProvider reports the robot's actual joint angles.
type JointStateProvider interface {
	ActualJointPosition(ctx context.Context, units AngleUnit) (JointVector, error)
}

// ControllerJointState reads the last measured joint position from the controller's
// command socket.
type ControllerJointState struct {
	link Link
}

// NewControllerJointState returns a provider backed by link.
func NewControllerJointState(link Link) *ControllerJointState {
	return &ControllerJointState{link: link}
}

// ActualJointPosition implements JointStateProvider.
func (j *ControllerJointState) ActualJointPosition(ctx context.Context, units AngleUnit) (JointVector, error) {
	if err := ValidateLiteral(LiteralAngle, string(units)); err != nil {
		return nil, err
	}
	reply, err := j.link.Exchange(ctx, CmdGetLastPosition, nil, LastPositionLayout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read actual joint position")
	}
	if len(reply.Values) != LastPositionLayout.Floats {
		return nil, errors.Wrapf(ErrNoResponse, "last position reply has %d values, want %d",
			len(reply.Values), LastPositionLayout.Floats)
	}
	if units == Degrees {
		return RadiansToDegrees(reply.Values...), nil
	}
	return JointVector(reply.Values), nil
}

// CachedJointState serves readings from an underlying provider for up to MaxAge before
// asking it again. Readings are cached in radians.
type CachedJointState struct {
	provider JointStateProvider
	maxAge   time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	joints  JointVector
	readAt  time.Time
	hasData bool
}

// NewCachedJointState wraps provider. A zero maxAge disables caching.
func NewCachedJointState(provider JointStateProvider, maxAge time.Duration, clk clock.Clock) *CachedJointState {
	if clk == nil {
		clk = clock.New()
	}
	return &CachedJointState{
		provider: provider,
		maxAge:   maxAge,
		clock:    clk,
	}
}

// ActualJointPosition implements JointStateProvider.
func (c *CachedJointState) ActualJointPosition(ctx context.Context, units AngleUnit) (JointVector, error) {
	if err := ValidateLiteral(LiteralAngle, string(units)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasData || c.maxAge <= 0 || c.clock.Since(c.readAt) > c.maxAge {
		joints, err := c.provider.ActualJointPosition(ctx, Radians)
		if err != nil {
			return nil, err
		}
		if err := ValidateLength("actual joint position", len(joints), JointCount); err != nil {
			return nil, err
		}
		c.joints = joints
		c.readAt = c.clock.Now()
		c.hasData = true
	}

	if units == Degrees {
		return RadiansToDegrees(c.joints...), nil
	}
	out := make(JointVector, len(c.joints))
	copy(out, c.joints)
	return out, nil
}

// Invalidate forgets the cached reading.
func (c *CachedJointState) Invalidate() {
	c.mu.Lock()
	c.hasData = false
	c.mu.Unlock()
}
