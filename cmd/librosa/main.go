// Command librosa is the LD_PRELOAD library. Build it with
//
//	go build -buildmode=c-shared -o librosa.so ./cmd/librosa
//
// and start the server as `LD_PRELOAD=./librosa.so ./subrosa.x64`, or use
// `rosaserver run`.
package main

func main() {}
