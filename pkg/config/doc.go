// Package config loads the configuration of a taskflow pipeline.
//
// Values are resolved in increasing priority from struct defaults, an
// optional YAML/JSON/TOML file, TASKFLOW_* environment variables and command
// line flags bound on the viper instance:
//
//	v := viper.New()
//	_ = v.BindPFlag("pool_size", cmd.Flags().Lookup("pool-size"))
//	cfg, err := config.Load(v, "taskflow.yaml")
//
// Nested keys use an underscore in the environment, so log.level is read
// from TASKFLOW_LOG_LEVEL.
//
// The result feeds the components directly:
//
//	pool, err := workerpool.NewWithConfig(cfg.WorkerPool())
//	sup, err := supervisor.New(pool, cfg.Supervisor())
package config
