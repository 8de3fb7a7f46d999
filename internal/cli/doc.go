// Package cli реализует инструмент командной строки Fresco.
//
// # Обзор
//
// CLI — операторская утилита: создание стен, приём карт препятствий,
// постановка запросов на планирование и наблюдение за jobs. У системы
// нет HTTP API, поэтому CLI работает напрямую с инфраструктурой:
// Postgres, Redis и RabbitMQ (по тем же переменным окружения, что и
// сервисы: DB_URL, REDIS_URL, RABBITMQ_URL).
//
// # Ключевые компоненты
//
// ## Client
//
// Обёртка над репозиториями, кэшем и publisher'ом. Подключения
// создаются лениво при первой команде; RabbitMQ опционален — без него
// submit полагается на polling оркестратора.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: fresco job list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - wall: create, show, ingest
//   - job:  submit, show, cancel, list
//
// Каждая группа создаётся через фабричную функцию (NewWallCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
