// Command fogbridge runs the edge bridge: MQTT telemetry in, sandboxed
// smoothing filter, processed records out.
package main

func main() {
	Execute()
}
