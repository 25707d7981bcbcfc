// Package transfer runs the client side of file uploads and downloads:
// hashing and encrypting local files into the upload stream, and
// decrypting and verifying downloaded ciphertext before it lands on disk.
package transfer
