package sysinfo

// Package sysinfo describes the client platform for the X-Client-Info header.

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Info is the subset of host facts the client reports.
type Info struct {
	OS              string
	Platform        string
	PlatformVersion string
	Arch            string
	CPUModel        string
	CPUCores        int
	TotalRAMMB      uint64
	GoVersion       string
}

// Collect gathers what it can; probes that fail leave their fields empty.
func Collect() Info {
	info := Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}

	if h, err := host.Info(); err == nil {
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	}
	if c, err := cpu.Info(); err == nil && len(c) > 0 {
		info.CPUModel = c[0].ModelName
		info.CPUCores = len(c)
	}
	if m, err := mem.VirtualMemory(); err == nil {
		info.TotalRAMMB = m.Total / 1024 / 1024
	}
	return info
}

// Header renders i as semicolon-separated key=value pairs, skipping
// empty values.
func (i Info) Header() string {
	pairs := []struct {
		k string
		v any
	}{
		{"os", i.OS},
		{"platform", strings.TrimSpace(i.Platform + " " + i.PlatformVersion)},
		{"arch", i.Arch},
		{"cpu", i.CPUModel},
		{"cores", i.CPUCores},
		{"ram_mb", i.TotalRAMMB},
		{"go", i.GoVersion},
	}

	var parts []string
	for _, p := range pairs {
		s := fmt.Sprint(p.v)
		if s == "" || s == "0" {
			continue
		}
		// Header values stay on one line and keep the separator unambiguous.
		s = strings.NewReplacer(";", ",", "\n", " ", "\r", " ").Replace(s)
		parts = append(parts, p.k+"="+s)
	}
	return strings.Join(parts, "; ")
}
