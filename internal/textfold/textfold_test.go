package textfold

import (
	"math"
	"testing"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Código":                 "CODIGO",
		"  Descrição  do serviço": "DESCRICAO DO SERVICO",
		"CUSTO UNITÁRIO":         "CUSTO UNITARIO",
		"Relatório":              "RELATORIO",
		"":                       "",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Custo unitário (R$)")
	want := []string{"CUSTO", "UNITARIO", "R"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokens[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSimilarity(t *testing.T) {
	if s := Similarity("CODIGO", "CODIGO"); s != 1 {
		t.Fatalf("expected 1, got %v", s)
	}
	if s := Similarity("DESCRICAO", "DESCRIACO"); s < 0.75 {
		t.Fatalf("expected transposition to stay similar, got %v", s)
	}
	if s := Similarity("CUSTO", "CODIGO"); s >= 0.5 {
		t.Fatalf("expected unrelated tokens to be dissimilar, got %v", s)
	}
	if s := Similarity("", "X"); s != 0 {
		t.Fatalf("expected 0 for empty input, got %v", s)
	}
	if s := Similarity("ABCD", "ABCE"); math.Abs(s-0.75) > 1e-12 {
		t.Fatalf("expected 0.75, got %v", s)
	}
}
