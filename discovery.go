// discovery.go
package ctrlr_kinematics

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
)

var KinematicsDiscoveryModel = resource.NewModel("viam-labs", "kinematics", "discovery")

const defaultPingTimeout = 500 * time.Millisecond

func init() {
	resource.RegisterService(
		discovery.API,
		KinematicsDiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newKinematicsDiscovery,
		})
}

// DiscoveryConfig is the configuration for the discovery service
type DiscoveryConfig struct {
	// Candidate controller hosts, with or without a port
	Hosts        []string      `json:"hosts"`
	PingTimeout time.Duration `json:"ping_timeout,omitempty"`
}

// Validate ensures the config is valid
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	for _, h := range cfg.Hosts {
		if _, _, err := splitCandidate(h); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

// kinematicsDiscovery implements the discovery service
type kinematicsDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	cfg    *DiscoveryConfig
	logger logging.Logger

	// ping checks one address; replaced in tests
	ping func(ctx context.Context, address string) error
}

func newKinematicsDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	dis := &kinematicsDiscovery{
		Named:  conf.ResourceName().AsNamed(),
		cfg:    cfg,
		logger: logger,
	}
	dis.ping = dis.pingController
	return dis, nil
}

// DiscoverResources pings every candidate host for a controller command socket and
// returns a sensor configuration for each one that answers. extra["hosts"] replaces the
// configured candidates.
func (dis *kinematicsDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	dis.logger.Info("Starting controller discovery")

	candidates := dis.cfg.Hosts
	if raw, ok := extra["hosts"].([]any); ok {
		candidates = nil
		for _, h := range raw {
			if s, ok := h.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	var allConfigs []resource.Config
	var pingErrs error
	for _, candidate := range candidates {
		// Check context cancellation
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return allConfigs, ctx.Err()
		default:
		}

		host, port, err := splitCandidate(candidate)
		if err != nil {
			pingErrs = multierr.Append(pingErrs, err)
			continue
		}
		address := net.JoinHostPort(host, strconv.Itoa(port))
		if err := dis.ping(ctx, address); err != nil {
			dis.logger.Debugf("No controller at %s: %v", address, err)
			pingErrs = multierr.Append(pingErrs, err)
			continue
		}

		dis.logger.Infof("Discovered controller at %s", address)
		allConfigs = append(allConfigs, generateConfig(host, port))
	}

	if len(allConfigs) == 0 {
		dis.logger.Infof("No controllers discovered (%d pings failed)", len(multierr.Errors(pingErrs)))
	} else {
		dis.logger.Infof("Discovered %d component configurations", len(allConfigs))
	}

	return allConfigs, nil
}

// pingController opens the command socket and asks for the last joint position, which
// every controller answers without side effects.
func (dis *kinematicsDiscovery) pingController(ctx context.Context, address string) error {
	host, port, err := splitCandidate(address)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dis.cfg.PingTimeout)
	defer cancel()

	controller, err := DialController(ctx, ControllerConfig{
		Host:        host,
		Port:        port,
		DialTimeout: dis.cfg.PingTimeout,
		ReadTimeout: dis.cfg.PingTimeout,
	}, dis.logger)
	if err != nil {
		return err
	}
	_, err = NewControllerJointState(controller).ActualJointPosition(ctx, Radians)
	return multierr.Combine(err, controller.Close())
}

// generateConfig creates the sensor configuration for a discovered controller
func generateConfig(host string, port int) resource.Config {
	attrs := map[string]interface{}{
		"host": host,
	}
	if port != DefaultCommandPort {
		attrs["port"] = port
	}
	return resource.Config{
		Name:       "kinematics-" + resourceSuffix(host, port),
		API:        sensor.API,
		Model:      KinematicsSensorModel,
		Attributes: attrs,
	}
}

// splitCandidate parses "host" or "host:port"; the port defaults to the command port.
func splitCandidate(candidate string) (string, int, error) {
	if candidate == "" {
		return "", 0, fmt.Errorf("empty controller host")
	}
	host, portStr, err := net.SplitHostPort(candidate)
	if err != nil {
		// No port given
		return strings.Trim(candidate, "[]"), DefaultCommandPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", candidate)
	}
	return host, port, nil
}

// resourceSuffix makes a resource-name-safe suffix
// 192.168.1.10, 29001 -> "192-168-1-10"
// robot.local, 30001 -> "robot-local-30001"
func resourceSuffix(host string, port int) string {
	suffix := strings.NewReplacer(".", "-", ":", "-").Replace(host)
	if port != DefaultCommandPort {
		suffix += "-" + strconv.Itoa(port)
	}
	return suffix
}
