package main

import (
	"fmt"
	"os"

	"xhs_sign/headers"
)

func main() {
	urlPath := `/api/sns/web/v1/homefeed{"cursor_score":"","num":39,"refresh_type":1,"note_index":35,"unread_begin_note_id":"","unread_end_note_id":"","unread_note_count":0,"category":"homefeed_recommend","search_key":"","need_num":14,"image_formats":["jpg","webp","avif"],"need_filter_image":false}`
	a1 := "1947369ced9g07o90xrwmhqzjfzpsgrlfc20baiaj50000474757"
	ts := "1738852912404"

	expected := "XYW_eyJzaWduU3ZuIjoiNTYiLCJzaWduVHlwZSI6IngyIiwiYXBwSWQiOiJ4aHMtcGMtd2ViIiwic2lnblZlcnNpb24iOiIxIiwicGF5bG9hZCI6IjA2NTkyNDhhMTdmMTk1OGY5YmM0MGI5MTcxZDgxZGQ4YzIxNjBhNTI4YzU5NDhjNTJlOGI2Y2ZjZDFiNmJhZmRhNjJiMjBjY2I4YzM1NjJkZTNlNzg3NmI1ZTI0YTcyZWIyY2U2MTg5ZGE2ZTY4MzRlZmRmMzIxY2M0MzEwZWE2NWI2NzAwMTEzMzIwMDZhMDc0ZTI4NWY2YTg0ZWE2NmIyYzBhZmE0MDJjNzZmZDUzZDYxOWRkYjJlMTA0ZmFmNWNmNGI1N2Q4YzhkNzMxZDMwNTNmMTlhNWM1YzI0Mjc4ZWUyZTAwMGQyY2RiNTYyOWE3ZDI2NjRmZTI1ZDA5ZjliYmQ0Yjg0ZjU0ODg3ZjYyNGZmM2RhNGVhOTJmMDIzMGI1OTAyYzU3M2JlMjM5M2NhOGQ0ZDhlNGFmNzBiYWNhYzQ1YjIwNTkyMDA1Y2NkMzRiMzY2N2RhZDk5N2M5ZmExMGVjYTg4ODU1OTNkMjFhZjJmYjI3M2I5NGM5YTdhZmYxMjU0YjY4YzVkNDU1NjZhYTIyNmUyNDIwNmJjNGRmIn0="

	xs, err := headers.Default().MakeXS(headers.SigningContext{
		URLPath:         urlPath,
		TimestampMs:     ts,
		Platform:        "xhs-pc-web",
		SessionIdentity: a1,
	})
	if err != nil {
		fmt.Println("sign error:", err)
		os.Exit(1)
	}

	fmt.Printf("Expected:  %s\n", expected)
	fmt.Printf("Generated: %s\n", xs)

	if xs == expected {
		fmt.Println("✅ Signature MATCHES!")
	} else {
		fmt.Println("❌ Signature MISMATCH!")
		os.Exit(1)
	}
}
