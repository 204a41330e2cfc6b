package config

// Built-in profiles, selected with Load("@name").

const cfgSim = `
backend: posix
log_level: info
posix:
  timer_engine: timerfd
  poll_interval_ms: 100
  max_timers: 1000
  lock_graph: true
`

const cfgSimPortable = `
backend: posix
posix:
  timer_engine: heap
`

const cfgRTX = `
backend: cmsis
tick_hz: 1000
cmsis:
  start_kernel: true
`

var embeddedConfigs = map[string][]byte{
	"sim":          []byte(cfgSim),
	"sim-portable": []byte(cfgSimPortable),
	"rtx":          []byte(cfgRTX),
}
