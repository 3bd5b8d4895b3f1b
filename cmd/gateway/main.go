// Command gateway is a rate limiting reverse proxy.
package main

func main() {
	Execute()
}
