package featureflags

import "testing"

func TestEnabledDefaults(t *testing.T) {
	if !Enabled(RequireEmailVerification) {
		t.Errorf("%s should default on", RequireEmailVerification)
	}
	if Enabled(NotificationTestEndpoint) {
		t.Errorf("%s should default off", NotificationTestEndpoint)
	}
	if Enabled("unknown_flag") {
		t.Errorf("unknown flags are off")
	}
}

func TestEnabledOverride(t *testing.T) {
	t.Setenv("FLAG_REQUIRE_EMAIL_VERIFICATION", "false")
	t.Setenv("FLAG_NOTIFICATION_TEST_ENDPOINT", "Yes")
	if Enabled(RequireEmailVerification) {
		t.Errorf("override to false ignored")
	}
	if !Enabled(NotificationTestEndpoint) {
		t.Errorf("override to yes ignored")
	}
}
