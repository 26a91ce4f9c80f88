package parser

import "testing"

func TestDetectLanguageByExtension(t *testing.T) {
	cases := map[string]Language{
		"main.go":       LangGo,
		"script.py":     LangPython,
		"app.ts":        LangTypeScript,
		"component.tsx": LangTypeScript,
		"index.js":      LangJavaScript,
		"Main.java":     LangJava,
		"lib.rs":        LangRust,
		"vector.hpp":    LangCPP,
		"Program.cs":    LangCSharp,
		"index.php":     LangPHP,
		"main.zig":      LangZig,
	}
	for path, want := range cases {
		if got := DetectLanguage(path, []byte("content")); got != want {
			t.Errorf("DetectLanguage(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDetectLanguageShebangOverridesExtension(t *testing.T) {
	content := []byte("#!/usr/bin/env python3\nprint('hi')\n")
	if got := DetectLanguage("script.txt", content); got != LangPython {
		t.Errorf("expected shebang to resolve to python, got %v", got)
	}
}

func TestDetectLanguageStripsBOMBeforeShebangCheck(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("#!/usr/bin/env node\nconsole.log(1)\n")...)
	if got := DetectLanguage("script", content); got != LangJavaScript {
		t.Errorf("expected BOM-prefixed shebang to resolve to javascript, got %v", got)
	}
}

func TestDetectLanguageSniffsWhenExtensionUnknown(t *testing.T) {
	content := []byte("package main\n\nfunc main() {}\n")
	if got := DetectLanguage("Makefile.snippet", content); got != LangGo {
		t.Errorf("expected content sniff to resolve to go, got %v", got)
	}
}

func TestDetectLanguageUnknownStaysUnknown(t *testing.T) {
	if got := DetectLanguage("README", []byte("just some prose, nothing code-shaped here")); got != LangUnknown {
		t.Errorf("expected unknown language, got %v", got)
	}
}

func TestHasUTF16BOM(t *testing.T) {
	if !HasUTF16BOM([]byte{0xFF, 0xFE, 'a', 0}) {
		t.Errorf("expected little-endian UTF-16 BOM to be detected")
	}
	if HasUTF16BOM([]byte("plain ascii")) {
		t.Errorf("expected no BOM on plain ascii")
	}
}
