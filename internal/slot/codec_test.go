/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package slot

import "testing"

func testCodec() Codec {
	return NewCodec("11:40", "12:20")
}

func TestDecodeRegularToken(t *testing.T) {
	tok := testCodec().Decode("242508001_2_P1_0900_0940_rajeshmaths080910_8_MATH")
	if tok.Kind != KindRegular {
		t.Fatalf("expected regular token, got %s", tok.Kind)
	}
	if tok.ClassCode != "242508001" || tok.DayOfWeek != 2 || tok.PeriodLabel != "P1" {
		t.Fatalf("unexpected identity fields: %+v", tok)
	}
	if tok.Start != "09:00" || tok.End != "09:40" {
		t.Fatalf("unexpected times: %s..%s", tok.Start, tok.End)
	}
	if tok.TeacherCode != "rajeshmaths080910" {
		t.Fatalf("unexpected teacher: %s", tok.TeacherCode)
	}
	if tok.SubjectCode != "8_MATH" {
		t.Fatalf("expected grade-prefixed subject to survive, got %q", tok.SubjectCode)
	}
}

func TestDecodeBareLunchUsesConfiguredWindow(t *testing.T) {
	tok := testCodec().Decode("LUNCH_242510001_LUNCH")
	if tok.Kind != KindLunch {
		t.Fatalf("expected lunch token, got %s", tok.Kind)
	}
	if tok.Start != "11:40" || tok.End != "12:20" {
		t.Fatalf("unexpected lunch window: %s..%s", tok.Start, tok.End)
	}
}

func TestDecodeTaggedLunch(t *testing.T) {
	tok := testCodec().Decode("242508001_2_P5_1140_1220_LUNCH_LUNCH")
	if tok.Kind != KindLunch {
		t.Fatalf("expected lunch token, got %s", tok.Kind)
	}
	if tok.Start != "11:40" || tok.End != "12:20" {
		t.Fatalf("unexpected lunch window: %s..%s", tok.Start, tok.End)
	}
}

func TestDecodeExamToken(t *testing.T) {
	tok := testCodec().Decode("EXAM_MATH_morning")
	if tok.Kind != KindExam {
		t.Fatalf("expected exam token, got %s", tok.Kind)
	}
	if tok.SubjectCode != "MATH" || tok.Session != SessionMorning {
		t.Fatalf("unexpected exam fields: %+v", tok)
	}
}

func TestDecodeExamTokenGradePrefixedSubject(t *testing.T) {
	// Subject codes are grade-prefixed ("8_MATH"), so the session anchors at
	// the tail and the underscore in the subject must not split it.
	tok := testCodec().Decode("EXAM_8_MATH_morning")
	if tok.Kind != KindExam {
		t.Fatalf("expected exam token, got %s", tok.Kind)
	}
	if tok.SubjectCode != "8_MATH" || tok.Session != SessionMorning {
		t.Fatalf("unexpected exam fields: %+v", tok)
	}
}

func TestDecodeExamTokenBadSessionUnrecognized(t *testing.T) {
	tok := testCodec().Decode("EXAM_MATH_tonight")
	if tok.Kind != KindUnrecognized {
		t.Fatalf("expected unrecognized token, got %s", tok.Kind)
	}
}

func TestLunchMarkerWinsOverExamPrefix(t *testing.T) {
	// A LUNCH marker anywhere takes precedence over the EXAM_ prefix; this
	// shape matches neither lunch sub-format so it degrades cleanly.
	tok := testCodec().Decode("EXAM_LUNCH_morning")
	if tok.Kind != KindUnrecognized {
		t.Fatalf("expected unrecognized token, got %s", tok.Kind)
	}
}

func TestDecodeIsTotal(t *testing.T) {
	inputs := []string{
		"",
		"garbage",
		"_______",
		"242508001_notaday_P1_0900_0940_t_SUB",
		"242508001_2_P1_9999_0940_t_SUB",
		"LUNCH",
		"LUNCH_only",
		"EXAM_MATH",
		"\x00\xffbinary",
		"a_b_c_d_e_f",
	}
	for _, in := range inputs {
		tok := testCodec().Decode(in)
		if tok.Kind != KindUnrecognized {
			t.Fatalf("input %q: expected unrecognized, got %s", in, tok.Kind)
		}
		if tok.Raw != in {
			t.Fatalf("input %q: raw not preserved: %q", in, tok.Raw)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := testCodec()
	tokens := []Token{
		{
			Kind:        KindRegular,
			ClassCode:   "242508001",
			DayOfWeek:   2,
			PeriodLabel: "P1",
			Start:       "09:00",
			End:         "09:40",
			TeacherCode: "rajeshmaths080910",
			SubjectCode: "8_MATH",
		},
		{Kind: KindLunch, Start: "11:40", End: "12:20"},
		{Kind: KindLunch, Start: "12:00", End: "12:45"},
		{Kind: KindExam, SubjectCode: "MATH", Session: SessionFullDay},
		{Kind: KindExam, SubjectCode: "8_MATH", Session: SessionMorning},
		{Kind: KindUnrecognized, Raw: "whatever_this_was"},
	}
	for _, want := range tokens {
		got := c.Decode(c.Encode(want))
		if got != want {
			t.Fatalf("round trip mismatch:\n want %+v\n got  %+v", want, got)
		}
	}
}

func TestBareLunchDecodes(t *testing.T) {
	tok := testCodec().Decode(BareLunch("242508001"))
	if tok.Kind != KindLunch {
		t.Fatalf("expected lunch token, got %s", tok.Kind)
	}
}
