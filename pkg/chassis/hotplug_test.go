package chassis

import (
	"context"
	"errors"
	"testing"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/util"
)

// hotplugParams are the seven attach parameters, without the action.
var hotplugParams = []model.AttrUpdate{
	{Kind: model.AttrHotplugSocketIP, Value: "127.0.0.1"},
	{Kind: model.AttrHotplugSocketPort, Value: "6555"},
	{Kind: model.AttrHotplugVMMAC, Value: "52:54:00:AB:CD:01"},
	{Kind: model.AttrHotplugNetdevID, Value: "netdev0"},
	{Kind: model.AttrHotplugChardevID, Value: "char0"},
	{Kind: model.AttrHotplugDeviceID, Value: "dev0"},
	{Kind: model.AttrNativeSocketPath, Value: "/tmp/vhost-user-0"},
}

func applyHotplugParams(t *testing.T, m *Manager, portID uint32) {
	t.Helper()
	for _, upd := range hotplugParams {
		mustApply(t, m, portID, upd.Kind, upd.Value)
	}
}

func hotplug(m *Manager, portID uint32, action string) error {
	return m.ApplyAttribute(context.Background(), 1, portID, model.AttrUpdate{Kind: model.AttrHotplug, Value: action})
}

func TestHotplugAttachRequiresProgrammedPort(t *testing.T) {
	m, dev := newTestManager(t)
	mustPush(t, m, testConfig(plainPort(1, 1)))
	applyHotplugParams(t, m, 1)

	err := hotplug(m, 1, "add")
	if !errors.Is(err, util.ErrPreconditionFailed) {
		t.Fatalf("attach error = %v, want ErrPreconditionFailed", err)
	}
	if got := dev.count("hotplug_port"); got != 0 {
		t.Errorf("hotplug_port calls = %d, want 0", got)
	}
	st := portStatus(t, m, 1)
	if st.Attached {
		t.Error("port should not be attached")
	}
	if len(st.PendingHotplug) != len(hotplugParams) {
		t.Errorf("pending hotplug = %v, want the %d parameters", st.PendingHotplug, len(hotplugParams))
	}
	if st.Config.Hotplug.Action != model.NoHotplug {
		t.Errorf("action = %s, want none after the attempt", st.Config.Hotplug.Action)
	}
}

func TestHotplugAttachDetach(t *testing.T) {
	m, dev := newTestManager(t)
	log := &eventLog{}
	m.RegisterEventWriter(log)
	mustPush(t, m, testConfig(tapPort(1, 1)))

	applyHotplugParams(t, m, 1)
	if got := dev.count("hotplug_port"); got != 0 {
		t.Fatalf("hotplug_port called before the action: %d", got)
	}
	if err := hotplug(m, 1, "add"); err != nil {
		t.Fatalf("attach error = %v", err)
	}
	calls := dev.callsFor("hotplug_port")
	if len(calls) != 1 || calls[0].value != "add" || calls[0].sdk != 10 {
		t.Fatalf("hotplug_port calls = %v", calls)
	}
	st := portStatus(t, m, 1)
	if !st.Attached {
		t.Fatal("port should be attached")
	}
	if st.Config.Hotplug.VMMAC != "52:54:00:ab:cd:01" {
		t.Errorf("VM MAC = %q, want normalized", st.Config.Hotplug.VMMAC)
	}

	if err := hotplug(m, 1, "add"); !errors.Is(err, util.ErrPreconditionFailed) {
		t.Errorf("second attach error = %v, want ErrPreconditionFailed", err)
	}

	if err := hotplug(m, 1, "del"); err != nil {
		t.Fatalf("detach error = %v", err)
	}
	calls = dev.callsFor("hotplug_port")
	if len(calls) != 2 || calls[1].value != "del" {
		t.Fatalf("hotplug_port calls = %v", calls)
	}
	st = portStatus(t, m, 1)
	if st.Attached || len(st.PendingHotplug) != 0 {
		t.Errorf("after detach: attached=%v pending=%v", st.Attached, st.PendingHotplug)
	}

	if err := hotplug(m, 1, "del"); !errors.Is(err, util.ErrPreconditionFailed) {
		t.Errorf("second detach error = %v, want ErrPreconditionFailed", err)
	}
	if got := dev.count("hotplug_port"); got != 2 {
		t.Errorf("hotplug_port calls = %d, want 2", got)
	}

	var plugged, unplugged int
	for _, k := range log.kinds() {
		switch k {
		case PortHotplugged:
			plugged++
		case PortUnplugged:
			unplugged++
		}
	}
	if plugged != 1 || unplugged != 1 {
		t.Errorf("hotplug events = %d/%d, want 1/1", plugged, unplugged)
	}
}

func TestHotplugDeviceFailure(t *testing.T) {
	m, dev := newTestManager(t)
	mustPush(t, m, testConfig(tapPort(1, 1)))
	applyHotplugParams(t, m, 1)

	dev.failFn = func(c devCall) error {
		if c.op == "hotplug_port" {
			return errInjected
		}
		return nil
	}
	err := hotplug(m, 1, "add")
	if !errors.Is(err, errInjected) || !errors.Is(err, util.ErrInternal) {
		t.Fatalf("attach error = %v, want internal injected failure", err)
	}
	if portStatus(t, m, 1).Attached {
		t.Fatal("failed attach must not mark the port attached")
	}

	dev.failFn = nil
	if err := hotplug(m, 1, "add"); err != nil {
		t.Fatalf("retry with kept parameters: %v", err)
	}
	if !portStatus(t, m, 1).Attached {
		t.Error("port should be attached after retry")
	}
}

func TestHotplugInvalidValues(t *testing.T) {
	tests := []model.AttrUpdate{
		{Kind: model.AttrHotplugSocketIP, Value: "localhost"},
		{Kind: model.AttrHotplugSocketPort, Value: "0"},
		{Kind: model.AttrHotplugSocketPort, Value: "70000"},
		{Kind: model.AttrHotplugVMMAC, Value: "52:54:00"},
		{Kind: model.AttrHotplugNetdevID, Value: ""},
		{Kind: model.AttrHotplug, Value: "none"},
		{Kind: model.AttrHotplug, Value: "swap"},
	}

	m, _ := newTestManager(t)
	mustPush(t, m, testConfig(tapPort(1, 1)))
	for _, upd := range tests {
		err := m.ApplyAttribute(context.Background(), 1, 1, upd)
		if !errors.Is(err, util.ErrInvalidParam) {
			t.Errorf("ApplyAttribute(%s) error = %v, want ErrInvalidParam", upd, err)
		}
	}
	if got := portStatus(t, m, 1).PendingHotplug; len(got) != 0 {
		t.Errorf("pending hotplug = %v, want empty", got)
	}
}

func TestHotplugAttachWaitsForParameters(t *testing.T) {
	m, dev := newTestManager(t)
	mustPush(t, m, testConfig(tapPort(1, 1)))

	if err := hotplug(m, 1, "add"); err != nil {
		t.Fatalf("action before parameters: %v", err)
	}
	for _, upd := range hotplugParams[:len(hotplugParams)-1] {
		mustApply(t, m, 1, upd.Kind, upd.Value)
	}
	if got := dev.count("hotplug_port"); got != 0 {
		t.Fatalf("hotplug_port called with incomplete parameters")
	}
	last := hotplugParams[len(hotplugParams)-1]
	mustApply(t, m, 1, last.Kind, last.Value)
	if got := dev.count("hotplug_port"); got != 1 {
		t.Errorf("hotplug_port calls = %d, want 1", got)
	}
}
