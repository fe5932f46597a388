//go:build js || wasip1

package supervisor

const canSpawnProcesses = false
