package commands

import "testing"

func TestParser_ParseCommand(t *testing.T) {
	parser := NewParser("")

	tests := []struct {
		name     string
		input    string
		wantNil  bool
		wantName string
		wantArgs string
	}{
		{name: "empty", input: "", wantNil: true},
		{name: "plain text", input: "hello world", wantNil: true},
		{name: "prefix only", input: "!", wantNil: true},
		{name: "prefix then digit", input: "!123", wantNil: true},
		{name: "simple", input: "!help", wantName: "help"},
		{name: "case folded", input: "!SetThread", wantName: "setthread"},
		{name: "with args", input: "!link  XY12 ", wantName: "link", wantArgs: "XY12"},
		{name: "mention arg", input: "!setthread <@42>", wantName: "setthread", wantArgs: "<@42>"},
		{name: "other prefix", input: "/help", wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parser.ParseCommand(tt.input)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("ParseCommand(%q) = %+v, want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseCommand(%q) = nil", tt.input)
			}
			if got.Name != tt.wantName || got.Args != tt.wantArgs || got.Prefix != "!" {
				t.Fatalf("ParseCommand(%q) = %+v", tt.input, got)
			}
		})
	}
}

func TestParser_CustomPrefix(t *testing.T) {
	parser := NewParser("dl.")
	got := parser.ParseCommand("dl.whoami")
	if got == nil || got.Name != "whoami" {
		t.Fatalf("ParseCommand() = %+v", got)
	}
	if parser.ParseCommand("dlXwhoami") != nil {
		t.Fatal("prefix must be matched literally")
	}
}

func TestParseMention(t *testing.T) {
	tests := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"<@123>", "123", true},
		{"<@!456>", "456", true},
		{"<#789>", "", false},
		{"@someone", "", false},
		{"<@abc>", "", false},
	}
	for _, tt := range tests {
		id, ok := ParseMention(tt.in)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseMention(%q) = (%q, %v), want (%q, %v)", tt.in, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestSplitCommandArgs(t *testing.T) {
	name, args := SplitCommandArgs("  Add Alice <@1> ")
	if name != "add" || args != "Alice <@1>" {
		t.Fatalf("SplitCommandArgs() = (%q, %q)", name, args)
	}
	if name, args := SplitCommandArgs(""); name != "" || args != "" {
		t.Fatalf("SplitCommandArgs(\"\") = (%q, %q)", name, args)
	}
}
