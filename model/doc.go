// Package model содержит типы данных клиентского runtime:
// Task, TaskResult, статусы и маркеры результатов.
//
// Типы соответствуют контракту HTTP API оркестрационного сервера
// и сериализуются в JSON при poll/update вызовах.
package model
