package bus

import (
	"context"
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

type sample struct {
	Value int `json:"value"`
}

func TestStreamChannel(t *testing.T) {
	b := NewMemory(WithRecording())

	t.Run("enabled", func(t *testing.T) {
		ch, err := NewStreamChannel(b, "rtk", true, "RTK/info", "RTK/rel")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ch.Publish(sample{1}), test.ShouldBeNil)
		test.That(t, ch.Publish2(sample{2}), test.ShouldBeNil)
		test.That(t, b.Published("RTK/info"), test.ShouldResemble, []interface{}{sample{1}})
		test.That(t, b.Published("RTK/rel"), test.ShouldResemble, []interface{}{sample{2}})
	})

	t.Run("disabled", func(t *testing.T) {
		ch, err := NewStreamChannel(b, "mag", false, "mag", "")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b.Advertised("mag"), test.ShouldBeFalse)
		test.That(t, ch.Publish(sample{3}), test.ShouldBeNil)
		test.That(t, ch.Publish2(sample{3}), test.ShouldBeNil)
		test.That(t, b.Published("mag"), test.ShouldBeEmpty)
	})

	t.Run("nil channel", func(t *testing.T) {
		var ch *StreamChannel
		test.That(t, ch.Publish(sample{4}), test.ShouldBeNil)
	})
}

func TestMemorySubscribe(t *testing.T) {
	b := NewMemory(WithRecording())
	var got []sample
	err := b.Subscribe("joint_states", func(data []byte) {
		var s sample
		test.That(t, json.Unmarshal(data, &s), test.ShouldBeNil)
		got = append(got, s)
	})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, b.Inject("joint_states", sample{7}), test.ShouldBeNil)
	pub, err := b.Advertise("joint_states")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pub.Topic(), test.ShouldEqual, "joint_states")
	test.That(t, pub.Publish(sample{8}), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []sample{{7}, {8}})
	test.That(t, b.PublishCount(), test.ShouldEqual, 1)
}

func TestMemoryWithoutRecording(t *testing.T) {
	b := NewMemory()
	pub, err := b.Advertise("imu")
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 100; i++ {
		test.That(t, pub.Publish(sample{i}), test.ShouldBeNil)
	}
	test.That(t, b.PublishCount(), test.ShouldEqual, 0)
	test.That(t, b.Published("imu"), test.ShouldBeEmpty)

	// unencodable messages only fail once someone is listening
	test.That(t, pub.Publish(make(chan int)), test.ShouldBeNil)
	var got []sample
	test.That(t, b.Subscribe("imu", func(data []byte) {
		var s sample
		test.That(t, json.Unmarshal(data, &s), test.ShouldBeNil)
		got = append(got, s)
	}), test.ShouldBeNil)
	test.That(t, pub.Publish(make(chan int)), test.ShouldNotBeNil)
	test.That(t, pub.Publish(sample{101}), test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []sample{{101}})
	test.That(t, b.PublishCount(), test.ShouldEqual, 0)
}

func TestMemoryServices(t *testing.T) {
	b := NewMemory()
	err := b.HandleService("firmware_update", func(ctx context.Context, req []byte) Response {
		var body struct {
			Filename string `json:"filename"`
		}
		if err := json.Unmarshal(req, &body); err != nil {
			return Response{Message: err.Error()}
		}
		return Response{Success: true, Message: body.Filename}
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.HandleService("firmware_update", nil), test.ShouldNotBeNil)

	resp, err := b.Call(context.Background(), "firmware_update", map[string]string{"filename": "fw.hex"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp, test.ShouldResemble, Response{Success: true, Message: "fw.hex"})

	_, err = b.Call(context.Background(), "missing", nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMemoryClose(t *testing.T) {
	b := NewMemory()
	pub, err := b.Advertise("ins")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Close(), test.ShouldBeNil)

	test.That(t, pub.Publish(sample{1}), test.ShouldEqual, ErrClosed)
	_, err = b.Advertise("imu")
	test.That(t, err, test.ShouldEqual, ErrClosed)
}

func TestSubjects(t *testing.T) {
	test.That(t, Subject("uins", "RTK/info"), test.ShouldEqual, "uins.RTK.info")
	test.That(t, Subject("", "/gps/obs"), test.ShouldEqual, "gps.obs")
	test.That(t, ServiceSubject("uins", "set_refLLA"), test.ShouldEqual, "uins.srv.set_refLLA")
}
