package main

type SimulatorConfig struct {
	race    raceSimulatorConfig
	viewers viewerSimulatorConfig
}

func V1Config() SimulatorConfig {
	return SimulatorConfig{
		race: raceSimulatorConfig{
			DisruptionProbability: 8,
			BurstProbability:      10,
			SkipProbability:       2,
			MaxLapsPerStep:        5,
		},
		viewers: viewerSimulatorConfig{
			ViewerConnectProbability:          40,
			ViewerDisconnectProbability:       15,
			InvalidDisconnectFaultProbability: 30,
			GarbageMessageProbability:         5,
		},
	}
}
