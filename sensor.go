package ctrlr_kinematics

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var (
	KinematicsSensorModel = resource.NewModel("viam-labs", "kinematics", "controller")
)

func init() {
	resource.RegisterComponent(sensor.API, KinematicsSensorModel,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: NewKinematicsSensor,
		},
	)
}

// kinematicsSensor exposes controller-hosted kinematics as a sensor component
type kinematicsSensor struct {
	resource.Named
	resource.AlwaysRebuild

	logger logging.Logger
	cfg    *Config
	kin    *Kinematics
	joints *CachedJointState

	// release hands the shared controller back on Close
	release  func() error
	registry *ControllerRegistry

	mu     sync.RWMutex
	frames map[string]*CoordinateSystem
}

// NewKinematicsSensor creates a kinematics sensor on the shared controller connection
func NewKinematicsSensor(
	ctx context.Context,
	deps resource.Dependencies,
	rawConf resource.Config,
	logger logging.Logger,
) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	return newKinematicsSensor(ctx, rawConf.ResourceName(), conf, defaultRegistry, logger)
}

func newKinematicsSensor(
	ctx context.Context,
	name resource.Name,
	conf *Config,
	registry *ControllerRegistry,
	logger logging.Logger,
) (*kinematicsSensor, error) {
	if _, _, err := conf.Validate(""); err != nil {
		return nil, err
	}
	ctrlCfg := conf.ControllerConfig()
	controller, err := registry.GetController(ctx, ctrlCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get shared controller: %w", err)
	}
	release := func() error { return registry.ReleaseController(ctrlCfg) }

	ks, err := newSensorWithLink(name, conf, controller, release, logger)
	if err != nil {
		return nil, multierr.Append(err, release())
	}
	ks.registry = registry
	logger.Infof("Kinematics sensor ready on %s (default units %s, %d frames)",
		ctrlCfg.Address(), conf.Units, len(ks.frames))
	return ks, nil
}

// newSensorWithLink builds the sensor around any Link.
func newSensorWithLink(
	name resource.Name,
	conf *Config,
	link Link,
	release func() error,
	logger logging.Logger,
) (*kinematicsSensor, error) {
	if _, _, err := conf.Validate(""); err != nil {
		return nil, err
	}
	frames, err := conf.LoadFrames(logger)
	if err != nil {
		return nil, err
	}

	joints := NewCachedJointState(NewControllerJointState(link), conf.JointStateMaxAge, nil)
	kin, err := NewKinematics(link, joints, AngleUnit(conf.Units), logger)
	if err != nil {
		return nil, err
	}

	return &kinematicsSensor{
		Named:   name.AsNamed(),
		logger:  logger,
		cfg:     conf,
		kin:     kin,
		joints:  joints,
		release: release,
		frames:  frames,
	}, nil
}

// Readings returns the actual joint position and the TCP pose it maps to, in the default units
func (ks *kinematicsSensor) Readings(ctx context.Context, extra map[string]any) (map[string]any, error) {
	units := ks.kin.DefaultUnits()

	actual, err := ks.joints.ActualJointPosition(ctx, units)
	if err != nil {
		return nil, err
	}

	readings := map[string]any{
		"units":         string(units),
		"actual_joints": toAnySlice(actual),
	}

	pose, found, err := ks.kin.GetForward(ctx, actual, units, nil)
	if err != nil {
		return nil, err
	}
	readings["tcp_pose_found"] = found
	if found {
		readings["tcp_pose"] = toAnySlice(pose)
	}
	return readings, nil
}

// DoCommand handles kinematics requests
func (ks *kinematicsSensor) DoCommand(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("command must be a string")
	}

	switch command {
	case "get_forward":
		return ks.getForward(ctx, cmd)

	case "get_inverse":
		return ks.getInverse(ctx, cmd)

	case "convert_pose":
		return ks.convertPose(cmd)

	case "get_actual_position":
		return ks.getActualPosition(ctx, cmd)

	case "set_frame":
		return ks.setFrame(cmd)

	case "get_info":
		return ks.getInfo(), nil

	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func (ks *kinematicsSensor) getForward(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	joints, err := floatsArg(cmd, "joints")
	if err != nil {
		return nil, err
	}
	units, err := unitsArg(cmd)
	if err != nil {
		return nil, err
	}
	var cs *CoordinateSystem
	if _, named := cmd["frame"]; named {
		if cs, err = ks.frameArg(cmd); err != nil {
			return nil, err
		}
	}

	pose, found, err := ks.kin.GetForward(ctx, joints, units, cs)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"found": found}
	if found {
		result["pose"] = toAnySlice(pose)
	}
	return result, nil
}

func (ks *kinematicsSensor) getInverse(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	pose, err := floatsArg(cmd, "pose")
	if err != nil {
		return nil, err
	}
	units, err := unitsArg(cmd)
	if err != nil {
		return nil, err
	}
	returnAll, _ := cmd["return_all"].(bool)

	if returnAll {
		solutions, found, err := ks.kin.GetInverseAll(ctx, pose, units)
		if err != nil {
			return nil, err
		}
		result := map[string]any{"found": found}
		if found {
			all := make([]any, len(solutions))
			for i, s := range solutions {
				all[i] = toAnySlice(s)
			}
			result["solutions"] = all
		}
		return result, nil
	}

	joints, found, err := ks.kin.GetInverse(ctx, pose, units)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"found": found}
	if found {
		result["joints"] = toAnySlice(joints)
	}
	return result, nil
}

func (ks *kinematicsSensor) convertPose(cmd map[string]any) (map[string]any, error) {
	pose, err := floatsArg(cmd, "pose")
	if err != nil {
		return nil, err
	}
	units, err := unitsArg(cmd)
	if err != nil {
		return nil, err
	}
	cs, err := ks.frameArg(cmd)
	if err != nil {
		return nil, err
	}
	toLocal, _ := cmd["to_local"].(bool)

	converted, err := ConvertPose(cs, pose, units.resolve(ks.kin.DefaultUnits()), toLocal)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pose": toAnySlice(converted)}, nil
}

func (ks *kinematicsSensor) getActualPosition(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	units, err := unitsArg(cmd)
	if err != nil {
		return nil, err
	}
	units = units.resolve(ks.kin.DefaultUnits())
	if refresh, _ := cmd["refresh"].(bool); refresh {
		ks.joints.Invalidate()
	}

	joints, err := ks.joints.ActualJointPosition(ctx, units)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"joints": toAnySlice(joints),
		"units":  string(units),
	}, nil
}

// setFrame defines or replaces a named coordinate system, persisting it when a frames file is configured
func (ks *kinematicsSensor) setFrame(cmd map[string]any) (map[string]any, error) {
	name, ok := cmd["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("name must be a non-empty string")
	}
	origin, err := floatsArg(cmd, "origin")
	if err != nil {
		return nil, err
	}
	units, err := unitsArg(cmd)
	if err != nil {
		return nil, err
	}
	cs, err := NewCoordinateSystem(name, origin, units.resolve(ks.kin.DefaultUnits()))
	if err != nil {
		return nil, err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.frames[name] = cs

	result := map[string]any{"success": true, "name": name}
	if ks.cfg.FramesFile != "" {
		if err := SaveFramesToFile(ks.cfg.FramesFile, ks.frames); err != nil {
			return map[string]any{"success": false}, err
		}
		result["frames_file"] = ks.cfg.FramesFile
		ks.logger.Infof("Saved frame %s to %s", name, ks.cfg.FramesFile)
	}
	return result, nil
}

func (ks *kinematicsSensor) getInfo() map[string]any {
	ks.mu.RLock()
	names := frameNames(ks.frames)
	ks.mu.RUnlock()

	frames := make([]any, len(names))
	for i, n := range names {
		frames[i] = n
	}
	info := map[string]any{
		"host":                ks.cfg.Host,
		"port":                ks.cfg.Port,
		"units":               ks.cfg.Units,
		"timeout":             ks.cfg.Timeout.String(),
		"joint_state_max_age": ks.cfg.JointStateMaxAge.String(),
		"frames":              frames,
	}
	if ks.registry != nil {
		refCount, connected, _ := ks.registry.GetControllerStatus(ks.cfg.ControllerConfig().Address())
		info["controller_ref_count"] = refCount
		info["connected"] = connected
	}
	return info
}

func (ks *kinematicsSensor) frameArg(cmd map[string]any) (*CoordinateSystem, error) {
	name, ok := cmd["frame"].(string)
	if !ok {
		return nil, fmt.Errorf("frame must be a string")
	}
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	cs, ok := ks.frames[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q", name)
	}
	return cs, nil
}

// Close releases the shared controller
func (ks *kinematicsSensor) Close(ctx context.Context) error {
	if ks.release == nil {
		return nil
	}
	return ks.release()
}

// unitsArg reads the optional "units" argument. Empty means the configured default.
func unitsArg(cmd map[string]any) (AngleUnit, error) {
	raw, present := cmd["units"]
	if !present {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("units must be a string")
	}
	return ParseAngleUnit(s)
}

// floatsArg reads a numeric list. JSON arrives as []interface{} of float64.
func floatsArg(cmd map[string]any, key string) ([]float64, error) {
	raw, ok := cmd[key]
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []any:
		out := make([]float64, len(v))
		for i, e := range v {
			switch n := e.(type) {
			case float64:
				out[i] = n
			case int:
				out[i] = float64(n)
			default:
				return nil, fmt.Errorf("%s[%d] must be a number, got %T", key, i, e)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list of numbers, got %T", key, raw)
	}
}

func toAnySlice(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
