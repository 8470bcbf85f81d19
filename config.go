package ctrlr_kinematics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.viam.com/rdk/logging"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultJointStateAge = 100 * time.Millisecond
)

// Config is the attribute set of the kinematics sensor.
type Config struct {
	// Controller command socket
	Host    string        `json:"host"`
	Port    int           `json:"port,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`

	// Unit used when a request does not name one: "deg" or "rad"
	Units string `json:"units,omitempty"`

	// How long an actual joint reading may be reused for inverse kinematics arbitration
	JointStateMaxAge time.Duration `json:"joint_state_max_age,omitempty"`

	// Named user coordinate systems, origin given as [x, y, z, rx, ry, rz]
	Frames     map[string][]float64 `json:"frames,omitempty"`
	FrameUnits string               `json:"frame_units,omitempty"`
	FramesFile string               `json:"frames_file,omitempty"`

	// Not serialized
	Logger logging.Logger `json:"-"`
}

// Validate ensures all parts of the config are valid
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Host == "" {
		return nil, nil, fmt.Errorf("must specify host of the robot controller")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultCommandPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Timeout < 0 {
		return nil, nil, fmt.Errorf("timeout must be positive, got %v", cfg.Timeout)
	}
	if cfg.JointStateMaxAge == 0 {
		cfg.JointStateMaxAge = defaultJointStateAge
	}
	if cfg.Units == "" {
		cfg.Units = string(Degrees)
	}
	if err := ValidateLiteral(LiteralAngle, cfg.Units); err != nil {
		return nil, nil, fmt.Errorf("units: %w", err)
	}
	if cfg.FrameUnits == "" {
		cfg.FrameUnits = cfg.Units
	}
	if err := ValidateLiteral(LiteralAngle, cfg.FrameUnits); err != nil {
		return nil, nil, fmt.Errorf("frame_units: %w", err)
	}
	for name, origin := range cfg.Frames {
		if err := ValidateLength("frame "+name, len(origin), PoseLength); err != nil {
			return nil, nil, err
		}
	}

	return nil, nil, nil
}

// ControllerConfig returns the socket settings for this config.
func (cfg *Config) ControllerConfig() ControllerConfig {
	return ControllerConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		DialTimeout: cfg.Timeout,
		ReadTimeout: cfg.Timeout,
	}
}

// FrameFileFormat is the on-disk format of a frames file. Origins use the file's own units.
type FrameFileFormat struct {
	Units  string               `json:"units"`
	Frames map[string][]float64 `json:"frames"`
}

// LoadFrames builds the named coordinate systems from the frames file, if any, and then
// the inline frames, which win on name clashes.
func (cfg *Config) LoadFrames(logger logging.Logger) (map[string]*CoordinateSystem, error) {
	frames := map[string]*CoordinateSystem{}

	if cfg.FramesFile != "" {
		// Handle relative paths using VIAM_MODULE_DATA
		if !filepath.IsAbs(cfg.FramesFile) {
			moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
			if moduleDataDir == "" {
				moduleDataDir = "/tmp" // Fallback if VIAM_MODULE_DATA not set
			}
			cfg.FramesFile = filepath.Join(moduleDataDir, cfg.FramesFile)
		}

		fromFile, err := LoadFramesFromFile(cfg.FramesFile)
		if err != nil {
			if logger != nil {
				logger.Warnf("Failed to load frames from %s: %v", cfg.FramesFile, err)
			}
		} else {
			for name, cs := range fromFile {
				frames[name] = cs
			}
			if logger != nil {
				logger.Infof("Loaded %d frames from %s", len(fromFile), cfg.FramesFile)
			}
		}
	}

	for name, origin := range cfg.Frames {
		cs, err := NewCoordinateSystem(name, origin, AngleUnit(cfg.FrameUnits))
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", name, err)
		}
		frames[name] = cs
	}
	return frames, nil
}

// LoadFramesFromFile reads a frames file.
func LoadFramesFromFile(filePath string) (map[string]*CoordinateSystem, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames file: %w", err)
	}

	var fileFormat FrameFileFormat
	if err := json.Unmarshal(data, &fileFormat); err != nil {
		return nil, fmt.Errorf("failed to parse frames JSON: %w", err)
	}
	if fileFormat.Units == "" {
		fileFormat.Units = string(Radians)
	}

	frames := make(map[string]*CoordinateSystem, len(fileFormat.Frames))
	for name, origin := range fileFormat.Frames {
		cs, err := NewCoordinateSystem(name, origin, AngleUnit(fileFormat.Units))
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", name, err)
		}
		frames[name] = cs
	}
	return frames, nil
}

// SaveFramesToFile writes frames with radian origins.
func SaveFramesToFile(filePath string, frames map[string]*CoordinateSystem) error {
	fileFormat := FrameFileFormat{
		Units:  string(Radians),
		Frames: make(map[string][]float64, len(frames)),
	}
	for name, cs := range frames {
		fileFormat.Frames[name] = cs.Origin
	}

	data, err := json.MarshalIndent(fileFormat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal frames: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write frames file: %w", err)
	}

	return nil
}

// frameNames lists frame names in a stable order.
func frameNames(frames map[string]*CoordinateSystem) []string {
	names := make([]string, 0, len(frames))
	for name := range frames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
