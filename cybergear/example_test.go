package cybergear_test

import (
	"context"
	"fmt"

	"github.com/notnil/cybergear/cybergear"
	"github.com/notnil/cybergear/canbus"
)

func ExampleMotor() {
	bus := canbus.NewLoopbackBus()
	defer bus.Close()
	host, sniffer := bus.Open(), bus.Open()
	ctx := context.Background()

	m := cybergear.NewMotor(host, 0x7F)
	g, err := m.Engage(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	_ = m.WriteF32(ctx, cybergear.RegSpdRef, 2.1)
	_ = g.Release(ctx)

	for i := 0; i < 3; i++ {
		f, _ := sniffer.Receive(ctx)
		fmt.Println(f)
	}
	// Output:
	// 0300007F [0]
	// 1200007F [8] 0A 70 00 00 66 66 06 40
	// 0400007F [0]
}

func ExampleControlFrame() {
	f := cybergear.ControlFrame(0x7F, cybergear.Setpoint{})
	fmt.Println(f)
	// Output: 0100007F [8] 00 80 00 80 00 00 00 00
}
