package devices

import (
	"strings"
	"sync"
	"testing"
)

func lightIDs(r *Registry) []int {
	var ids []int
	for _, l := range r.ListLights().Lights {
		ids = append(ids, l.ID)
	}
	return ids
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestAddLightAssignsMaxPlusOne(t *testing.T) {
	reg := NewRegistry(WithLights([]Light{{ID: 7, Name: "a"}, {ID: 2, Name: "b"}}))
	res := reg.AddLight("c", false)
	if !res.OK() || res.Light == nil {
		t.Fatalf("expected ok result with light, got %+v", res)
	}
	if res.Light.ID != 8 {
		t.Fatalf("expected id 8, got %d", res.Light.ID)
	}
}

func TestAddLightAfterRemovingAllStartsAtOne(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []int{1, 2, 3} {
		if res := reg.RemoveLight(intPtr(id), nil); !res.OK() {
			t.Fatalf("remove %d: %s", id, res.Message)
		}
	}
	res := reg.AddLight("Desk Lamp", false)
	if res.Light.ID != 1 {
		t.Fatalf("expected id 1 on empty registry, got %d", res.Light.ID)
	}
	if want := "Light 'Desk Lamp' added with ID 1 and state off."; res.Message != want {
		t.Fatalf("expected %q, got %q", want, res.Message)
	}
}

func TestRemoveByIDFailsSecondTime(t *testing.T) {
	reg := NewRegistry()
	first := reg.RemoveLight(intPtr(2), nil)
	if !first.OK() {
		t.Fatalf("expected removal, got %+v", first)
	}
	if got := len(reg.ListLights().Lights); got != 2 {
		t.Fatalf("expected 2 lights, got %d", got)
	}
	second := reg.RemoveLight(intPtr(2), nil)
	if second.Status != StatusNotFound {
		t.Fatalf("expected not found, got %s", second.Status)
	}
	if second.Message != "No light found with ID 2." {
		t.Fatalf("unexpected message %q", second.Message)
	}
}

func TestRemoveIDTakesPrecedenceOverName(t *testing.T) {
	reg := NewRegistry()
	res := reg.RemoveLight(intPtr(3), strPtr("Table Lamp"))
	if !res.OK() || res.Light.Name != "Chandelier" {
		t.Fatalf("expected chandelier removed, got %+v", res)
	}
	if !equalInts(lightIDs(reg), []int{1, 2}) {
		t.Fatalf("unexpected ids %v", lightIDs(reg))
	}
}

func TestRemoveWithoutArgumentsIsInvalid(t *testing.T) {
	reg := NewRegistry()
	res := reg.RemoveLight(nil, nil)
	if res.Status != StatusInvalidArgs {
		t.Fatalf("expected invalid args, got %s", res.Status)
	}
	if len(reg.ListLights().Lights) != 3 {
		t.Fatalf("registry should be unchanged")
	}
}

func TestRemoveByNameRemovesFirstMatchOnly(t *testing.T) {
	reg := NewRegistry(WithLights([]Light{{ID: 1, Name: "Lamp"}, {ID: 2, Name: "lamp"}}))
	res := reg.RemoveLight(nil, strPtr("LAMP"))
	if !res.OK() || res.Light.ID != 1 {
		t.Fatalf("expected id 1 removed, got %+v", res)
	}
	if !equalInts(lightIDs(reg), []int{2}) {
		t.Fatalf("unexpected ids %v", lightIDs(reg))
	}
}

func TestRenameRequiresIDAndName(t *testing.T) {
	reg := NewRegistry()
	res := reg.RenameLight(1, "table lamp", "Reading Lamp")
	if res.Status != StatusNotFound {
		t.Fatalf("expected not found for inexact name, got %s", res.Status)
	}
	if want := "No light found with id 1 and name 'table lamp'"; res.Message != want {
		t.Fatalf("expected %q, got %q", want, res.Message)
	}
	if got := reg.ListLights().Lights[0].Name; got != "Table Lamp" {
		t.Fatalf("name changed on mismatch: %q", got)
	}
	res = reg.RenameLight(2, "Table Lamp", "Reading Lamp")
	if res.Status != StatusNotFound {
		t.Fatalf("expected not found for wrong id")
	}
	res = reg.RenameLight(1, "Table Lamp", "Reading Lamp")
	if !res.OK() {
		t.Fatalf("expected rename, got %+v", res)
	}
	if got := reg.ListLights().Lights[0].Name; got != "Reading Lamp" {
		t.Fatalf("expected renamed light, got %q", got)
	}
}

func TestSetLightState(t *testing.T) {
	reg := NewRegistry()
	res := reg.SetLightState(1, true)
	if !res.OK() || !res.Light.IsOn {
		t.Fatalf("expected light on, got %+v", res)
	}
	if got := res.Text(); got != `{"id":1,"name":"Table Lamp","is_on":true}` {
		t.Fatalf("unexpected text %s", got)
	}
	if res := reg.SetLightState(42, true); res.Status != StatusNotFound {
		t.Fatalf("expected not found, got %s", res.Status)
	}
}

func TestListLightsReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	lights := reg.ListLights().Lights
	lights[0].Name = "mutated"
	if reg.ListLights().Lights[0].Name != "Table Lamp" {
		t.Fatalf("listing leaked internal state")
	}
}

func TestListLightsTextOnEmptyRegistry(t *testing.T) {
	reg := NewRegistry(WithLights(nil))
	if got := reg.ListLights().Text(); got != "[]" {
		t.Fatalf("expected [], got %s", got)
	}
}

func TestSetModeIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	for _, in := range []string{"Heat", "HEAT", "heat"} {
		res := reg.SetMode(in)
		if !res.OK() {
			t.Fatalf("mode %q rejected", in)
		}
		if reg.Thermostat().Mode != ModeHeat {
			t.Fatalf("mode %q not applied", in)
		}
		if res.Message != "Thermostat mode set to 'heat'." {
			t.Fatalf("unexpected message %q", res.Message)
		}
	}
}

func TestSetModeRejectsUnknown(t *testing.T) {
	reg := NewRegistry()
	reg.SetMode("cool")
	res := reg.SetMode("boil")
	if res.Status != StatusInvalidArgs {
		t.Fatalf("expected invalid args, got %s", res.Status)
	}
	if !strings.HasPrefix(res.Message, "Invalid mode 'boil'.") {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if reg.Thermostat().Mode != ModeCool {
		t.Fatalf("mode changed on invalid input")
	}
}

func TestIncreaseThenDecreaseRoundTrips(t *testing.T) {
	reg := NewRegistry()
	before := reg.Thermostat().TargetTemp
	if res := reg.IncreaseTemperature(); res.Message != "Target temperature increased to 23°C." {
		t.Fatalf("unexpected message %q", res.Message)
	}
	reg.DecreaseTemperature()
	if after := reg.Thermostat().TargetTemp; after != before {
		t.Fatalf("expected %v, got %v", before, after)
	}
}

func TestTemperatureIsUnbounded(t *testing.T) {
	reg := NewRegistry()
	reg.SetTemperature(-40)
	reg.DecreaseTemperature()
	if got := reg.Thermostat().TargetTemp; got != -41 {
		t.Fatalf("expected -41, got %v", got)
	}
	if res := reg.SetTemperature(21.5); res.Message != "Target temperature set to 21.5°C." {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestEndToEndLights(t *testing.T) {
	reg := NewRegistry()
	if !equalInts(lightIDs(reg), []int{1, 2, 3}) {
		t.Fatalf("unexpected initial ids %v", lightIDs(reg))
	}
	added := reg.AddLight("Desk Lamp", true)
	if added.Light.ID != 4 || !added.Light.IsOn {
		t.Fatalf("unexpected added light %+v", added.Light)
	}
	removed := reg.RemoveLight(nil, strPtr("porch light"))
	if !removed.OK() || removed.Light.ID != 2 {
		t.Fatalf("expected porch light removed, got %+v", removed)
	}
	if !equalInts(lightIDs(reg), []int{1, 3, 4}) {
		t.Fatalf("unexpected final ids %v", lightIDs(reg))
	}
}

func TestEndToEndModeOff(t *testing.T) {
	reg := NewRegistry()
	reg.SetMode("off")
	res := reg.Temperature()
	want := "The current temperature is 22°C, target is 22°C, mode is 'off'."
	if res.Message != want {
		t.Fatalf("expected %q, got %q", want, res.Message)
	}
	if res.Thermostat.CurrentTemp != 22 || res.Thermostat.TargetTemp != 22 {
		t.Fatalf("temperatures changed: %+v", res.Thermostat)
	}
}

func TestWithThermostatFallsBackToAuto(t *testing.T) {
	reg := NewRegistry(WithThermostat(Thermostat{CurrentTemp: 19, TargetTemp: 20, Mode: "boil"}))
	if got := reg.Thermostat().Mode; got != ModeAuto {
		t.Fatalf("expected auto, got %s", got)
	}
}

func TestConcurrentAddsKeepIDsUnique(t *testing.T) {
	reg := NewRegistry(WithLights(nil))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.AddLight("l", false)
		}()
	}
	wg.Wait()
	seen := map[int]bool{}
	for _, id := range lightIDs(reg) {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 50 {
		t.Fatalf("expected 50 lights, got %d", len(seen))
	}
}
