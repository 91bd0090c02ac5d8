package client

import (
	"fmt"
	"math/rand"
)

const defaultUserAgent = "okhttp/5.0.0-alpha.14"

var uaDevices = []string{
	"sdk_gphone64_x86_64", "sdk_gphone_x86", "Pixel_6_Pro", "Pixel_7", "Pixel_3a", "Nexus_6P",
}

// RandomUserAgent - generates a client-identifying header value shaped like the
// ones the vendor's Android app sends. Generated once at login and persisted
// with the session so every subsequent call reuses the same identity.
func RandomUserAgent() string {
	androidVersion := fmt.Sprintf("%d.%d", 8+rand.Intn(7), rand.Intn(4))
	device := uaDevices[rand.Intn(len(uaDevices))]
	okhttpVersion := fmt.Sprintf("%d.%d.0-alpha.%d", 4+rand.Intn(2), rand.Intn(3), 1+rand.Intn(19))

	options := []string{
		fmt.Sprintf("aws-sdk-android/2.22.6 Linux/5.10.%d Dalvik/2.1.0/0 en_US DevcuboClient", 120+rand.Intn(80)),
		fmt.Sprintf("okhttp/%s (Linux; Android %s; %s)", okhttpVersion, androidVersion, device),
		fmt.Sprintf("Dalvik/2.1.0 (Linux; U; Android %s; %s)", androidVersion, device),
		fmt.Sprintf("aws-sdk-android/2.22.6 (Linux; Android %s; %s)", androidVersion, device),
	}

	return options[rand.Intn(len(options))]
}
