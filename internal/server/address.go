package server

import (
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Address is the network binding of a world. Empty Host or zero Port
// mean the value could not be determined.
type Address struct {
	Host string
	Port int
}

// Known reports whether both parts are set.
func (a Address) Known() bool {
	return a.Host != "" && a.Port > 0
}

// String returns host:port, using "?" for unknown parts.
func (a Address) String() string {
	host, port := a.Host, "?"
	if host == "" {
		host = "?"
	}
	if a.Port > 0 {
		port = strconv.Itoa(a.Port)
	}
	return net.JoinHostPort(host, port)
}

const propertiesFile = "server.properties"

var (
	propPortRe = regexp.MustCompile(`(?m)^server-port\s*=\s*(\d{1,5})\s*$`)
	propIPRe   = regexp.MustCompile(`(?m)^server-ip\s*=\s*(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\s*$`)
	ipv4Re     = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// PropertiesAddress reads server-ip and server-port from
// server.properties. A missing ip means all interfaces: localhost.
func PropertiesAddress(worldDir string) Address {
	data, err := os.ReadFile(filepath.Join(worldDir, propertiesFile))
	if err != nil {
		return Address{}
	}
	addr := Address{Host: "localhost"}
	if m := propIPRe.FindSubmatch(data); m != nil {
		addr.Host = string(m[1])
	}
	if m := propPortRe.FindSubmatch(data); m != nil {
		addr.Port, _ = strconv.Atoi(string(m[1]))
	}
	return addr
}

type bungeeConfig struct {
	Listeners []struct {
		Host string `yaml:"host"`
	} `yaml:"listeners"`
}

// bungeeCordAddress reads the first listener of config.yml.
func bungeeCordAddress(worldDir string) Address {
	data, err := os.ReadFile(filepath.Join(worldDir, "config.yml"))
	if err != nil {
		return Address{}
	}
	var conf bungeeConfig
	if err := yaml.Unmarshal(data, &conf); err != nil || len(conf.Listeners) == 0 {
		return Address{}
	}
	host, port, err := net.SplitHostPort(strings.TrimSpace(conf.Listeners[0].Host))
	if err != nil {
		return Address{}
	}

	var addr Address
	if host = strings.TrimSpace(host); ipv4Re.MatchString(host) {
		addr.Host = host
		if host == "0.0.0.0" {
			addr.Host = "localhost"
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(port)); err == nil && n > 0 && n <= 65535 {
		addr.Port = n
	}
	return addr
}
