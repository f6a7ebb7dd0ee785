package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTone(t *testing.T) {
	assert.Equal(t, ToneAggressive, ParseTone(" Enérgico y Directo "))
	assert.Equal(t, ToneFormal, ParseTone(""))
	assert.Equal(t, ToneFormal, ParseTone("sarcástico"))
}

func TestBuildSystemInstruction(t *testing.T) {
	got := BuildSystemInstruction("", ToneEducational)
	assert.True(t, strings.HasPrefix(got, DefaultSystemInstruction))
	assert.True(t, strings.HasSuffix(got, "Instrucción de Tono actual: "+tonePrompts[ToneEducational]))

	got = BuildSystemInstruction("Base", Tone("desconocido"))
	assert.Equal(t, "Base\n\nInstrucción de Tono actual: "+tonePrompts[ToneFormal], got)
}
