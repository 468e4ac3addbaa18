// Command railmind answers railway operations requests by planning them
// into tasks and running those tasks through capability executors.
package main

func main() {
	Execute()
}
