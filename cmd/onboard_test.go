package cmd

import "testing"

func TestOnboardValidators(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) error
		input    string
		wantErr  bool
	}{
		{"ids", validateIDList, "12, 34", false},
		{"ids empty", validateIDList, " , ", true},
		{"ids text", validateIDList, "12,abc", true},
		{"port", validatePort, "8080", false},
		{"port zero", validatePort, "0", true},
		{"port text", validatePort, "http", true},
		{"dsn", validateDSN, "postgres://u:p@db:5432/ups", false},
		{"dsn mysql", validateDSN, "mysql://u:p@db/ups", true},
		{"timezone", validateTimezone, "Europe/Amsterdam", false},
		{"timezone unknown", validateTimezone, "Mars/Olympus", true},
		{"sender", validateSender, "ups@example.com", false},
		{"sender bare", validateSender, "ups", true},
		{"required", required("host"), "  ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.validate(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("validate(%q) = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestJoinIDs(t *testing.T) {
	if got := joinIDs([]int64{1, -100200}); got != "1,-100200" {
		t.Errorf("joinIDs = %q", got)
	}
	if s := generateSecret(); len(s) != 48 {
		t.Errorf("secret length = %d", len(s))
	}
}
