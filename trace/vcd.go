package trace

import (
	"bufio"
	"fmt"
	"io"
)

// vcdID returns the short identifier of signal i
func vcdID(i int) string {
	const first, span = 33, 94
	id := []byte{byte(first + i%span)}
	for i /= span; i > 0; i /= span {
		id = append(id, byte(first+i%span))
	}
	return string(id)
}

// WriteVCD writes samples as a value change dump with one tick per
// timescale unit
func WriteVCD(w io.Writer, samples []Sample, scope string) error {
	bw := bufio.NewWriter(w)
	signals := Signals(samples)
	ids := make(map[string]string, len(signals))

	fmt.Fprintf(bw, "$timescale 1 ns $end\n$scope module %s $end\n", scope)
	for i, name := range signals {
		ids[name] = vcdID(i)
		fmt.Fprintf(bw, "$var wire 1 %s %s $end\n", ids[name], name)
	}
	fmt.Fprint(bw, "$upscope $end\n$enddefinitions $end\n#0\n$dumpvars\n")
	for _, name := range signals {
		fmt.Fprintf(bw, "0%s\n", ids[name])
	}
	fmt.Fprint(bw, "$end\n")

	var tick uint64
	for _, s := range samples {
		if s.Tick != tick {
			tick = s.Tick
			fmt.Fprintf(bw, "#%d\n", tick)
		}
		v := '0'
		if s.Level {
			v = '1'
		}
		fmt.Fprintf(bw, "%c%s\n", v, ids[s.Signal])
	}
	return bw.Flush()
}
