package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

type gift struct {
	Name  string            `json:"name" codec:"name" cbor:"name"`
	Count int               `json:"count" codec:"count" cbor:"count"`
	Price float64           `json:"price" codec:"price" cbor:"price"`
	Tags  []string          `json:"tags" codec:"tags" cbor:"tags"`
	Attrs map[string]string `json:"attrs" codec:"attrs" cbor:"attrs"`
}

type PayloadSuite struct {
	suite.Suite
	codec Codec
}

func (s *PayloadSuite) TestStruct() {
	in := gift{Name: "rocket", Count: 3, Price: 9.5, Tags: []string{"a", "b"}, Attrs: map[string]string{"k": "v"}}
	data, err := s.codec.Marshal(&in)
	s.Require().NoError(err)

	var out gift
	s.Require().NoError(s.codec.Unmarshal(data, &out))
	s.Equal(in, out)
}

func (s *PayloadSuite) TestDeterministic() {
	m := map[string]int{"z": 1, "a": 2, "m": 3}
	first, err := s.codec.Marshal(m)
	s.Require().NoError(err)
	for i := 0; i < 8; i++ {
		again, err := s.codec.Marshal(m)
		s.Require().NoError(err)
		s.Equal(first, again)
	}
}

func (s *PayloadSuite) TestInterfaceMap() {
	data, err := s.codec.Marshal(map[string]any{"name": "x"})
	s.Require().NoError(err)

	var out any
	s.Require().NoError(s.codec.Unmarshal(data, &out))
	m, ok := out.(map[string]any)
	s.Require().True(ok, "%T", out)
	s.Equal("x", m["name"])
}

func (s *PayloadSuite) TestGarbage() {
	var out gift
	s.Error(s.codec.Unmarshal([]byte{0xc1, 0xff, 0x00}, &out))
}

func TestCodecs(t *testing.T) {
	for _, name := range Formats() {
		c, err := Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
		t.Run(name, func(t *testing.T) {
			suite.Run(t, &PayloadSuite{codec: c})
		})
	}
}

func TestGet(t *testing.T) {
	c, err := Get("")
	require.NoError(t, err)
	assert.Equal(t, FormatMsgpack, c.Name())

	c, err = Get(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, c.Name())

	_, err = Get("gob")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}
