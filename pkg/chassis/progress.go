package chassis

import (
	"math/bits"
	"strings"
)

// attr is one attribute tracked by a port's configuration progress.
type attr uint16

const (
	attrPortType attr = 1 << iota
	attrDeviceType
	attrQueueCount
	attrSocketPath
	attrHostName
	attrPipelineName
	attrMempoolName
	attrMTU
	attrPCIBDF
	attrPacketDir
)

// hotplug progress attributes
const (
	hpSocketIP attr = 1 << iota
	hpSocketPort
	hpVMMAC
	hpNetdevID
	hpChardevID
	hpDeviceID
	hpNativeSocketPath
	hpAction
)

var attrNames = map[attr]string{
	attrPortType:     "port-type",
	attrDeviceType:   "device-type",
	attrQueueCount:   "queue-count",
	attrSocketPath:   "socket-path",
	attrHostName:     "host-name",
	attrPipelineName: "pipeline-name",
	attrMempoolName:  "mempool-name",
	attrMTU:          "mtu",
	attrPCIBDF:       "pci-bdf",
	attrPacketDir:    "packet-dir",
}

var hotplugAttrNames = map[attr]string{
	hpSocketIP:         "hotplug-socket-ip",
	hpSocketPort:       "hotplug-socket-port",
	hpVMMAC:            "hotplug-vm-mac",
	hpNetdevID:         "hotplug-netdev-id",
	hpChardevID:        "hotplug-chardev-id",
	hpDeviceID:         "hotplug-device-id",
	hpNativeSocketPath: "native-socket-path",
	hpAction:           "hotplug",
}

// attrSet is a set of attrs.
type attrSet uint16

func setOf(attrs ...attr) attrSet {
	var s attrSet
	for _, a := range attrs {
		s |= attrSet(a)
	}
	return s
}

func (s attrSet) has(a attr) bool { return s&attrSet(a) != 0 }
func (s attrSet) with(a attr) attrSet { return s | attrSet(a) }
func (s attrSet) without(a attr) attrSet { return s &^ attrSet(a) }
func (s attrSet) union(o attrSet) attrSet { return s | o }
func (s attrSet) containsAll(o attrSet) bool { return s&o == o }
func (s attrSet) intersect(o attrSet) attrSet { return s & o }
func (s attrSet) isEmpty() bool { return s == 0 }
func (s attrSet) len() int { return bits.OnesCount16(uint16(s)) }

// names lists the members of s in bit order using the given name table.
func (s attrSet) names(table map[attr]string) []string {
	var out []string
	for a := attr(1); a != 0; a <<= 1 {
		if s.has(a) {
			if n, ok := table[a]; ok {
				out = append(out, n)
			}
		}
	}
	return out
}

func (s attrSet) String() string {
	return "{" + strings.Join(s.names(attrNames), ",") + "}"
}

// Mandatory and forbidden attribute sets per port type.
var (
	vhostMandatory = setOf(attrPortType, attrDeviceType, attrQueueCount, attrSocketPath, attrHostName)
	linkMandatory  = setOf(attrPortType, attrPCIBDF)
	tapMandatory   = setOf(attrPortType)

	vhostForbidden = setOf(attrPCIBDF)
	linkForbidden  = setOf(attrDeviceType, attrQueueCount, attrSocketPath, attrHostName)
	tapForbidden   = linkForbidden.union(setOf(attrPCIBDF))

	// hotplugAttachSet must be complete before an attach is attempted.
	hotplugAttachSet = setOf(hpSocketIP, hpSocketPort, hpVMMAC, hpNetdevID,
		hpChardevID, hpDeviceID, hpNativeSocketPath, hpAction)
)

// progress is the per-port accumulation state. attrs is reset whenever a
// partial update is rejected; programmed and the hotplug attached flag
// survive such resets because they describe the device.
type progress struct {
	attrs      attrSet
	programmed bool

	hotplug  attrSet
	attached bool
}

// resetConfig clears the configuration accumulation without touching the
// programmed flag.
func (p *progress) resetConfig() {
	p.attrs = 0
}

// resetHotplug clears the hotplug accumulation without touching the
// attached flag.
func (p *progress) resetHotplug() {
	p.hotplug = 0
}
