package device

// Package device derives a stable, non-reversible identifier for the machine
// running the client. It is sent as the X-Device-ID header.

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"os"
)

// GetMACAddress returns the MAC address of the first valid network interface (non-loopback).
func GetMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}

	return "", errors.New("no valid network interface found")
}

// ID hashes the hardware address so the raw MAC never leaves the machine.
// Without a usable interface it falls back to the hostname.
func ID() string {
	seed, err := GetMACAddress()
	if err != nil {
		seed, _ = os.Hostname()
	}
	if seed == "" {
		seed = "unknown"
	}
	return Hash(seed)
}

// Hash returns the device id derived from seed.
func Hash(seed string) string {
	sum := sha256.Sum256([]byte("swiftkyc:" + seed))
	return "kyc-" + hex.EncodeToString(sum[:8])
}
