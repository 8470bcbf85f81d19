package main

import (
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"

	kinematics "ctrlr_kinematics"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: sensor.API, Model: kinematics.KinematicsSensorModel},
		resource.APIModel{API: discovery.API, Model: kinematics.KinematicsDiscoveryModel},
	)
}
