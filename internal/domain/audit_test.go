package domain

import "testing"

func TestAuditDetailMaps(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		got  map[string]any
		want map[string]any
	}{
		{"login failed", LoginFailedDetail{Reason: "bad_password"}.Map(), map[string]any{"reason": "bad_password"}},
		{"account locked", AccountLockedDetail{FailedLoginCount: 5}.Map(), map[string]any{"failed_login_count": 5}},
		{"password reset", PasswordResetDetail{ActorID: "admin-1"}.Map(), map[string]any{"actor_id": "admin-1"}},
		{"user created", UserCreatedDetail{Role: "operator"}.Map(), map[string]any{"role": "operator"}},
		{"package created", PackageCreatedDetail{PackageID: "p1", TrackingNo: "trk1"}.Map(), map[string]any{"package_id": "p1", "tracking_no": "trk1"}},
		{"recipient imported", RecipientImportedDetail{Applied: 3}.Map(), map[string]any{"applied": 3}},
		{
			"settings change",
			SystemSettingsChangeDetail{Key: "qr_base_url", OldValue: "old", NewValue: "new"}.Map(),
			map[string]any{"key": "qr_base_url", "old_value": "old", "new_value": "new"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if len(tc.got) != len(tc.want) {
				t.Fatalf("%s: len = %d, want %d (%v)", tc.name, len(tc.got), len(tc.want), tc.got)
			}
			for k, v := range tc.want {
				if tc.got[k] != v {
					t.Fatalf("%s: [%q] = %v, want %v", tc.name, k, tc.got[k], v)
				}
			}
		})
	}
}

func TestPackageStatusChangedDetailMap(t *testing.T) {
	t.Parallel()

	detail := PackageStatusChangedDetail{PackageID: "p1", OldStatus: PackageRegistered, NewStatus: PackageAwaitingPickup}.Map()
	if detail["old_status"] != PackageRegistered {
		t.Fatalf("detail[old_status] = %v, want %v", detail["old_status"], PackageRegistered)
	}
	if detail["new_status"] != PackageAwaitingPickup {
		t.Fatalf("detail[new_status] = %v, want %v", detail["new_status"], PackageAwaitingPickup)
	}
}
